// internal/messaging/consumer.go
package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	perrors "prequal-pipeline/internal/common/errors"
	"prequal-pipeline/internal/common/logger"
	"prequal-pipeline/internal/common/metrics"
	"prequal-pipeline/internal/common/observability"
)

// RuntimeState is the consumer runtime lifecycle.
type RuntimeState int

const (
	StateStarting RuntimeState = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s RuntimeState) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateStopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

// Handler processes one envelope. A nil return acknowledges the envelope.
// Failures must be classified as *errors.PipelineError; anything else is
// treated as a programmer error and crashes the consumer task.
type Handler func(ctx context.Context, msg *message.Message) error

// WithTimeout bounds each handler invocation. A handler that honors its
// context turns a hung downstream call into a transient failure instead of
// stalling the partition.
func WithTimeout(h Handler, d time.Duration) Handler {
	if d <= 0 {
		return h
	}
	return func(ctx context.Context, msg *message.Message) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return h(ctx, msg)
	}
}

// ConsumerRuntime pulls envelopes from one topic, invokes the stage handler,
// and acknowledges only after the handler's side effect is durable. Envelopes
// are processed strictly one at a time, which preserves per-key ordering
// within the partitions this instance owns; horizontal scale comes from the
// broker assigning partitions across instances sharing a consumer group.
type ConsumerRuntime struct {
	stage      string
	topic      string
	subscriber message.Subscriber
	handler    Handler
	dlq        *DeadLetterRouter
	logger     logger.Logger
	obs        *observability.Observability

	mu    sync.Mutex
	state RuntimeState
}

func NewConsumerRuntime(
	stage string,
	topic string,
	subscriber message.Subscriber,
	handler Handler,
	dlq *DeadLetterRouter,
	log logger.Logger,
	obs *observability.Observability,
) *ConsumerRuntime {
	return &ConsumerRuntime{
		stage:      stage,
		topic:      topic,
		subscriber: subscriber,
		handler:    handler,
		dlq:        dlq,
		logger:     log.WithFields(map[string]interface{}{"stage": stage, "topic": topic}),
		obs:        obs,
		state:      StateStarting,
	}
}

// State returns the current lifecycle state.
func (r *ConsumerRuntime) State() RuntimeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *ConsumerRuntime) setState(s RuntimeState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Run blocks until ctx is cancelled (graceful drain, returns nil) or an
// unclassified error crashes the task (returns that error so an orchestrator
// can restart the consumer). Cancellation is observed only between
// envelopes; the in-flight envelope always finishes and is acknowledged
// before the subscription is released.
func (r *ConsumerRuntime) Run(ctx context.Context) error {
	// The subscription outlives ctx so the in-flight ack cannot race the
	// transport teardown.
	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()

	msgs, err := r.subscriber.Subscribe(subCtx, r.topic)
	if err != nil {
		r.setState(StateStopped)
		return fmt.Errorf("subscribe %s: %w", r.topic, err)
	}

	r.setState(StateRunning)
	r.logger.Info("consumer runtime started", nil)

	for {
		select {
		case <-ctx.Done():
			r.setState(StateDraining)
			r.logger.Info("shutdown signal received, draining", nil)
			subCancel()
			r.setState(StateStopped)
			r.logger.Info("consumer runtime stopped", nil)
			return nil

		case msg, ok := <-msgs:
			if !ok {
				r.setState(StateStopped)
				r.logger.Warn("subscription channel closed", nil)
				return nil
			}
			if err := r.dispatch(ctx, msg); err != nil {
				r.setState(StateStopped)
				return err
			}
		}
	}
}

// dispatch runs the handler and maps the classified outcome onto the
// acknowledgment decision. A non-nil return means an unclassified failure.
// The handler gets a context detached from run cancellation: a shutdown
// signal must not abort the in-flight envelope's downstream calls, only stop
// the loop from taking the next one.
func (r *ConsumerRuntime) dispatch(runCtx context.Context, msg *message.Message) error {
	ctx := context.WithoutCancel(runCtx)

	start := time.Now()
	err := r.handler(ctx, msg)
	elapsed := time.Since(start)

	metrics.ProcessingDuration.WithLabelValues(r.stage).Observe(elapsed.Seconds())
	if r.obs != nil {
		r.obs.RecordEnvelopeDuration(ctx, r.stage, elapsed)
	}

	if err == nil {
		msg.Ack()
		r.record(ctx, "processed")
		return nil
	}

	kind, ok := perrors.KindOf(err)
	if !ok {
		// Unclassified errors indicate corrupted internal state; crash this
		// consumer task rather than continue processing.
		r.logger.Error("unclassified processing error, stopping consumer", map[string]interface{}{
			"correlationId": CorrelationID(msg),
			"error":         err.Error(),
		})
		msg.Nack()
		return err
	}

	reason := perrors.ReasonOf(err)

	switch kind {
	case perrors.KindTransient:
		// Leave redelivery to the broker; no local retry loop here.
		r.logger.Warn("transient failure, envelope will be redelivered", map[string]interface{}{
			"correlationId": CorrelationID(msg),
			"error":         reason,
		})
		msg.Nack()
		r.record(ctx, "transient")

	case perrors.KindDuplicate:
		// Idempotency short-circuit: informational only.
		r.logger.Info("duplicate delivery ignored", map[string]interface{}{
			"correlationId": CorrelationID(msg),
			"detail":        reason,
		})
		msg.Ack()
		r.record(ctx, "duplicate")

	case perrors.KindMalformed, perrors.KindNotFound, perrors.KindResourceExhausted:
		r.dlq.Route(ctx, r.topic, msg, reason)
		msg.Ack()
		metrics.EnvelopesDeadLettered.WithLabelValues(r.stage, kind.String()).Inc()
		r.record(ctx, "deadlettered")
	}

	return nil
}

func (r *ConsumerRuntime) record(ctx context.Context, result string) {
	metrics.EnvelopesProcessed.WithLabelValues(r.stage, result).Inc()
	if r.obs != nil {
		r.obs.RecordEnvelopeProcessed(ctx, r.stage, result)
	}
}
