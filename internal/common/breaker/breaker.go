// internal/common/breaker/breaker.go
package breaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"prequal-pipeline/internal/common/logger"
	"prequal-pipeline/internal/common/metrics"
)

// State mirrors the three breaker states for callers that should not depend
// on the gobreaker types directly.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	}
	return "UNKNOWN"
}

// Breaker guards a single protected operation (the record store's decision
// update). One instance is shared by reference across all consumer tasks
// touching that resource; gobreaker serializes the state transitions.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// New builds a breaker that opens after threshold consecutive failures and
// allows exactly one trial call once cooldown has elapsed.
func New(name string, threshold uint32, cooldown time.Duration, log logger.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(stateGaugeValue(to))
			log.Warn("circuit breaker state changed", map[string]interface{}{
				"breaker": name,
				"from":    fromGobreaker(from).String(),
				"to":      fromGobreaker(to).String(),
			})
		},
	}

	metrics.BreakerState.WithLabelValues(name).Set(stateGaugeValue(gobreaker.StateClosed))

	return &Breaker{
		name: name,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// Execute runs fn through the breaker. While the breaker is open the call is
// rejected immediately with ErrOpenState and fn is never invoked.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return b.cb.Execute(fn)
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

// IsOpen reports whether err is a fail-fast rejection by an open or
// half-open-saturated breaker, as opposed to a failure of the protected
// operation itself.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	}
	return StateClosed
}

func stateGaugeValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}
