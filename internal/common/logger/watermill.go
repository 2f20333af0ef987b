// internal/common/logger/watermill.go
package logger

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
)

// watermillAdapter routes Watermill's internal logging through zap so broker
// internals and application code share one log stream.
type watermillAdapter struct {
	l *zap.Logger
}

// NewWatermillAdapter wraps a zap logger as a watermill.LoggerAdapter.
func NewWatermillAdapter(l *zap.Logger) watermill.LoggerAdapter {
	return &watermillAdapter{l: l}
}

func (a *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.l.Error(msg, append(logFieldsToZap(fields), zap.Error(err))...)
}

func (a *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.l.Info(msg, logFieldsToZap(fields)...)
}

func (a *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.l.Debug(msg, logFieldsToZap(fields)...)
}

func (a *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.l.Debug(msg, logFieldsToZap(fields)...)
}

func (a *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillAdapter{l: a.l.With(logFieldsToZap(fields)...)}
}

func logFieldsToZap(fields watermill.LogFields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
