// internal/messaging/publisher.go
package messaging

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"prequal-pipeline/internal/common/config"
	"prequal-pipeline/internal/common/logger"
	"prequal-pipeline/internal/common/metrics"
)

// PublishFailedError is returned once every delivery attempt has been
// exhausted. Callers decide whether that is fatal; the ingress boundary must
// surface it so an already-persisted record can be flagged for operator
// follow-up.
type PublishFailedError struct {
	Topic    string
	Attempts int
	Err      error
}

func (e *PublishFailedError) Error() string {
	return fmt.Sprintf("publish to %s failed after %d attempts: %v", e.Topic, e.Attempts, e.Err)
}

func (e *PublishFailedError) Unwrap() error {
	return e.Err
}

var errAttemptTimeout = fmt.Errorf("publish attempt timed out")

// Publisher sends envelopes to a topic with bounded retries: exactly
// MaxAttempts attempts, a timeout per attempt, and linear backoff
// proportional to the attempt number. No state is kept between calls.
type Publisher struct {
	pub            message.Publisher
	maxAttempts    int
	attemptTimeout time.Duration
	backoffStep    time.Duration
	logger         logger.Logger
}

func NewPublisher(pub message.Publisher, cfg config.PublisherConfig, log logger.Logger) *Publisher {
	return &Publisher{
		pub:            pub,
		maxAttempts:    cfg.MaxAttempts,
		attemptTimeout: cfg.AttemptTimeout,
		backoffStep:    cfg.BackoffStep,
		logger:         log,
	}
}

// Publish delivers payload to topic. key selects the partition so that
// envelopes for one application stay ordered.
func (p *Publisher) Publish(ctx context.Context, topic, key string, payload []byte, correlationID string) error {
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		msg := NewEnvelope(payload, key, correlationID)
		msg.Metadata.Set(MetaAttempt, strconv.Itoa(attempt))

		lastErr = p.publishOnce(ctx, topic, msg)
		if lastErr == nil {
			metrics.PublishAttempts.WithLabelValues(topic, "success").Inc()
			return nil
		}

		metrics.PublishAttempts.WithLabelValues(topic, "failure").Inc()
		p.logger.Warn("publish attempt failed", map[string]interface{}{
			"topic":         topic,
			"attempt":       attempt,
			"maxAttempts":   p.maxAttempts,
			"correlationId": correlationID,
			"error":         lastErr.Error(),
		})

		if attempt < p.maxAttempts {
			backoff := time.Duration(attempt) * p.backoffStep
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return &PublishFailedError{Topic: topic, Attempts: p.maxAttempts, Err: lastErr}
}

// publishOnce runs a single attempt under the per-attempt timeout. The
// broker client has no context hook, so a slow attempt is abandoned and its
// late result discarded; a duplicate write is tolerable under at-least-once
// delivery.
func (p *Publisher) publishOnce(ctx context.Context, topic string, msg *message.Message) error {
	done := make(chan error, 1)
	go func() {
		done <- p.pub.Publish(topic, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(p.attemptTimeout):
		return errAttemptTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
