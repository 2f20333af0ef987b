// internal/messaging/deadletter.go
package messaging

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"prequal-pipeline/internal/common/logger"
	"prequal-pipeline/internal/models"
)

// DeadLetterRouter republishes failed envelopes plus failure metadata to the
// terminal dead-letter topic. The dead-letter path itself is best-effort:
// Route never escalates its own publish failure, because refusing to
// acknowledge the original envelope would stall the partition indefinitely.
type DeadLetterRouter struct {
	publisher *Publisher
	topic     string
	stage     string
	logger    logger.Logger
}

func NewDeadLetterRouter(publisher *Publisher, topic, stage string, log logger.Logger) *DeadLetterRouter {
	return &DeadLetterRouter{
		publisher: publisher,
		topic:     topic,
		stage:     stage,
		logger:    log.WithFields(map[string]interface{}{"stage": stage}),
	}
}

// Route parks msg on the dead-letter topic with the failure reason attached.
func (r *DeadLetterRouter) Route(ctx context.Context, originalTopic string, msg *message.Message, reason string) {
	attempt, _ := strconv.Atoi(msg.Metadata.Get(MetaAttempt))
	if attempt == 0 {
		attempt = 1
	}

	dlm := models.DeadLetterMessage{
		OriginalTopic: originalTopic,
		Payload:       json.RawMessage(msg.Payload),
		ErrorMessage:  reason,
		RetryCount:    attempt,
		FailedAt:      time.Now().UTC(),
		CorrelationID: CorrelationID(msg),
	}

	payload, err := json.Marshal(dlm)
	if err != nil {
		// The raw payload was not valid JSON; park it as a string instead.
		dlm.Payload, _ = json.Marshal(string(msg.Payload))
		payload, err = json.Marshal(dlm)
		if err != nil {
			r.logger.Error("failed to encode dead letter", map[string]interface{}{
				"originalTopic": originalTopic,
				"error":         err.Error(),
			})
			return
		}
	}

	if err := r.publisher.Publish(ctx, r.topic, CorrelationID(msg), payload, CorrelationID(msg)); err != nil {
		r.logger.Error("failed to publish dead letter", map[string]interface{}{
			"originalTopic": originalTopic,
			"reason":        reason,
			"error":         err.Error(),
		})
		return
	}

	r.logger.Info("envelope routed to dead letter topic", map[string]interface{}{
		"originalTopic": originalTopic,
		"reason":        reason,
		"correlationId": CorrelationID(msg),
	})
}
