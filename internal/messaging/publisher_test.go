// internal/messaging/publisher_test.go
package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prequal-pipeline/internal/common/config"
	"prequal-pipeline/internal/common/logger"
)

// fakeBrokerPublisher records publish calls and fails a configurable number
// of times before succeeding.
type fakeBrokerPublisher struct {
	failures int
	calls    int
	messages []*message.Message
	topics   []string
}

func (f *fakeBrokerPublisher) Publish(topic string, messages ...*message.Message) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("broker unreachable")
	}
	f.topics = append(f.topics, topic)
	f.messages = append(f.messages, messages...)
	return nil
}

func (f *fakeBrokerPublisher) Close() error { return nil }

func testPublisherConfig() config.PublisherConfig {
	return config.PublisherConfig{
		MaxAttempts:    3,
		AttemptTimeout: 100 * time.Millisecond,
		BackoffStep:    time.Millisecond,
	}
}

func TestPublishSucceedsFirstAttempt(t *testing.T) {
	broker := &fakeBrokerPublisher{}
	p := NewPublisher(broker, testPublisherConfig(), logger.NewNoOpLogger())

	err := p.Publish(context.Background(), "applications.submitted", "app-1", []byte(`{}`), "corr-1")
	require.NoError(t, err)
	assert.Equal(t, 1, broker.calls)

	require.Len(t, broker.messages, 1)
	msg := broker.messages[0]
	assert.Equal(t, "app-1", msg.Metadata.Get(MetaPartitionKey))
	assert.Equal(t, "corr-1", msg.Metadata.Get(MetaCorrelationID))
}

func TestPublishRetriesThenSucceeds(t *testing.T) {
	broker := &fakeBrokerPublisher{failures: 2}
	p := NewPublisher(broker, testPublisherConfig(), logger.NewNoOpLogger())

	err := p.Publish(context.Background(), "credit.reports", "app-2", []byte(`{}`), "corr-2")
	require.NoError(t, err)
	assert.Equal(t, 3, broker.calls)
}

func TestPublishExhaustsExactlyMaxAttempts(t *testing.T) {
	broker := &fakeBrokerPublisher{failures: 100}
	p := NewPublisher(broker, testPublisherConfig(), logger.NewNoOpLogger())

	err := p.Publish(context.Background(), "credit.reports", "app-3", []byte(`{}`), "corr-3")

	var pf *PublishFailedError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, 3, pf.Attempts)
	assert.Equal(t, "credit.reports", pf.Topic)
	// Not N+1, not N-1.
	assert.Equal(t, 3, broker.calls)
}

func TestPublishRespectsCancellation(t *testing.T) {
	broker := &fakeBrokerPublisher{failures: 100}
	cfg := testPublisherConfig()
	cfg.BackoffStep = time.Hour // cancellation must interrupt the backoff wait
	p := NewPublisher(broker, cfg, logger.NewNoOpLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := p.Publish(ctx, "credit.reports", "app-4", []byte(`{}`), "corr-4")
	assert.ErrorIs(t, err, context.Canceled)
}

type hangingPublisher struct{}

func (hangingPublisher) Publish(string, ...*message.Message) error {
	select {}
}

func (hangingPublisher) Close() error { return nil }

func TestPublishAttemptTimeout(t *testing.T) {
	cfg := testPublisherConfig()
	cfg.MaxAttempts = 1
	cfg.AttemptTimeout = 20 * time.Millisecond
	p := NewPublisher(hangingPublisher{}, cfg, logger.NewNoOpLogger())

	start := time.Now()
	err := p.Publish(context.Background(), "applications.submitted", "app-5", []byte(`{}`), "corr-5")

	var pf *PublishFailedError
	require.ErrorAs(t, err, &pf)
	assert.Less(t, time.Since(start), time.Second)
}
