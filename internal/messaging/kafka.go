// internal/messaging/kafka.go
package messaging

import (
	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"prequal-pipeline/internal/common/config"
)

// partitioningMarshaler keys Kafka records by the partition_key metadata so
// every envelope for one application lands on the same partition.
func partitioningMarshaler() kafka.MarshalerUnmarshaler {
	return kafka.NewWithPartitioningMarshaler(func(topic string, msg *message.Message) (string, error) {
		if key := msg.Metadata.Get(MetaPartitionKey); key != "" {
			return key, nil
		}
		return msg.UUID, nil
	})
}

// NewKafkaPublisher builds the broker-side publisher. Acks from all in-sync
// replicas so a reported publish is durable.
func NewKafkaPublisher(cfg config.KafkaConfig, wmLogger watermill.LoggerAdapter) (message.Publisher, error) {
	saramaCfg := kafka.DefaultSaramaSyncPublisherConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll

	return kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               cfg.Brokers,
			Marshaler:             partitioningMarshaler(),
			OverwriteSaramaConfig: saramaCfg,
		},
		wmLogger,
	)
}

// NewKafkaSubscriber builds a consumer-group subscriber for one stage.
// Offsets are committed explicitly by the consumer runtime; new groups start
// from the oldest offset so no submitted application is skipped.
func NewKafkaSubscriber(cfg config.KafkaConfig, group string, wmLogger watermill.LoggerAdapter) (message.Subscriber, error) {
	saramaCfg := kafka.DefaultSaramaSubscriberConfig()
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	return kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               cfg.Brokers,
			Unmarshaler:           partitioningMarshaler(),
			ConsumerGroup:         group,
			OverwriteSaramaConfig: saramaCfg,
		},
		wmLogger,
	)
}
