// internal/messaging/envelope.go
package messaging

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Metadata keys carried on every envelope.
const (
	// MetaPartitionKey selects the Kafka partition; envelopes sharing a key
	// are delivered in order relative to each other.
	MetaPartitionKey = "partition_key"

	// MetaCorrelationID traces one application through both stages.
	MetaCorrelationID = "correlation_id"

	// MetaAttempt counts publish attempts for dead-letter reporting.
	MetaAttempt = "attempt"
)

// NewEnvelope builds a Watermill message with the standard metadata set.
func NewEnvelope(payload []byte, partitionKey, correlationID string) *message.Message {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetaPartitionKey, partitionKey)
	msg.Metadata.Set(MetaCorrelationID, correlationID)
	return msg
}

// CorrelationID reads the correlation id off an envelope, empty when absent.
func CorrelationID(msg *message.Message) string {
	return msg.Metadata.Get(MetaCorrelationID)
}
