// test/e2e/pipeline_test.go

// End-to-end pipeline tests over an in-process pub/sub. The real Kafka
// transport is exercised in integration environments; here the focus is the
// stage wiring: submission -> credit report -> decision -> durable status,
// including the breaker behavior when the record store goes down.
package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prequal-pipeline/internal/common/breaker"
	"prequal-pipeline/internal/common/config"
	"prequal-pipeline/internal/common/logger"
	"prequal-pipeline/internal/messaging"
	"prequal-pipeline/internal/models"
	"prequal-pipeline/internal/stages/credit"
	"prequal-pipeline/internal/stages/decision"
	"prequal-pipeline/internal/store"
)

const (
	topicSubmitted  = "applications.submitted"
	topicReports    = "credit.reports"
	topicDeadLetter = "processing.deadletter"
)

// memoryStore implements the decision stage's store contract in memory.
type memoryStore struct {
	mu    sync.Mutex
	apps  map[string]*models.Application
	calls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{apps: make(map[string]*models.Application)}
}

func (m *memoryStore) seed(app *models.Application) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps[app.ID] = app
}

func (m *memoryStore) get(id string) *models.Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	if app, ok := m.apps[id]; ok {
		cp := *app
		return &cp
	}
	return nil
}

func (m *memoryStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *memoryStore) ApplyDecision(ctx context.Context, id string, status models.Status, score int) (store.ApplyOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	app, ok := m.apps[id]
	if !ok {
		return store.OutcomeNotFound, nil
	}
	if app.Status != models.StatusPending {
		return store.OutcomeAlreadyProcessed, nil
	}
	app.Status = status
	app.CIBILScore = &score
	return store.OutcomeApplied, nil
}

// failingStore simulates a database outage.
type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (f *failingStore) ApplyDecision(ctx context.Context, id string, status models.Status, score int) (store.ApplyOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return store.OutcomeNotFound, errors.New("connection refused")
}

func (f *failingStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type pipelineFixture struct {
	pubsub    *gochannel.GoChannel
	publisher *messaging.Publisher
	deadMsgs  <-chan *message.Message
	cancel    context.CancelFunc
}

// startPipeline wires both stages onto an in-process pub/sub and returns once
// all subscriptions are live.
func startPipeline(t *testing.T, decisionStore decision.DecisionStore, br *breaker.Breaker) *pipelineFixture {
	t.Helper()

	log := logger.NewTestLogger(t)
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { pubsub.Close() })

	publisher := messaging.NewPublisher(pubsub, config.PublisherConfig{
		MaxAttempts:    3,
		AttemptTimeout: time.Second,
		BackoffStep:    time.Millisecond,
	}, logger.NewNoOpLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	deadMsgs, err := pubsub.Subscribe(ctx, topicDeadLetter)
	require.NoError(t, err)

	creditHandler := credit.NewHandler(credit.NewScorer(1), publisher, topicReports, log)
	creditDLQ := messaging.NewDeadLetterRouter(publisher, topicDeadLetter, "credit", log)
	creditRuntime := messaging.NewConsumerRuntime("credit", topicSubmitted,
		pubsub, creditHandler.Handle, creditDLQ, log, nil)

	decisionHandler := decision.NewHandler(decisionStore, br, nil, log)
	decisionDLQ := messaging.NewDeadLetterRouter(publisher, topicDeadLetter, "decision", log)
	decisionRuntime := messaging.NewConsumerRuntime("decision", topicReports,
		pubsub, decisionHandler.Handle, decisionDLQ, log, nil)

	go func() { _ = creditRuntime.Run(ctx) }()
	go func() { _ = decisionRuntime.Run(ctx) }()

	require.Eventually(t, func() bool {
		return creditRuntime.State() == messaging.StateRunning &&
			decisionRuntime.State() == messaging.StateRunning
	}, 2*time.Second, 10*time.Millisecond)

	return &pipelineFixture{pubsub: pubsub, publisher: publisher, deadMsgs: deadMsgs, cancel: cancel}
}

func (f *pipelineFixture) submit(t *testing.T, app models.LoanApplicationMessage) {
	t.Helper()
	payload, err := json.Marshal(app)
	require.NoError(t, err)
	require.NoError(t, f.publisher.Publish(context.Background(), topicSubmitted,
		app.ApplicationID, payload, "e2e-"+app.ApplicationID))
}

func TestSubmittedApplicationReachesTerminalStatus(t *testing.T) {
	st := newMemoryStore()
	br := breaker.New("e2e-happy", 5, time.Minute, logger.NewNoOpLogger())
	f := startPipeline(t, st, br)

	st.seed(&models.Application{
		ID:        "app-1",
		PANNumber: "ABCDE1234F",
		Status:    models.StatusPending,
	})

	// Fixed-score PAN: 790, income well above loan/48.
	f.submit(t, models.LoanApplicationMessage{
		ApplicationID:    "app-1",
		PANNumber:        "ABCDE1234F",
		MonthlyIncomeINR: 85000,
		LoanAmountINR:    1200000,
		LoanType:         models.LoanTypeHome,
	})

	require.Eventually(t, func() bool {
		app := st.get("app-1")
		return app != nil && app.Status == models.StatusPreApproved
	}, 5*time.Second, 10*time.Millisecond, "application never reached a terminal status")

	app := st.get("app-1")
	require.NotNil(t, app.CIBILScore)
	assert.Equal(t, 790, *app.CIBILScore)
	assert.Equal(t, 1, st.callCount(), "decision must be written exactly once")

	select {
	case dead := <-f.deadMsgs:
		t.Fatalf("unexpected dead letter: %s", dead.Payload)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubprimeApplicationIsRejected(t *testing.T) {
	st := newMemoryStore()
	br := breaker.New("e2e-reject", 5, time.Minute, logger.NewNoOpLogger())
	f := startPipeline(t, st, br)

	st.seed(&models.Application{
		ID:        "app-2",
		PANNumber: "FGHIJ5678K",
		Status:    models.StatusPending,
	})

	// Fixed-score PAN: 610, below the 650 cutoff.
	f.submit(t, models.LoanApplicationMessage{
		ApplicationID:    "app-2",
		PANNumber:        "FGHIJ5678K",
		MonthlyIncomeINR: 85000,
		LoanAmountINR:    500000,
		LoanType:         models.LoanTypePersonal,
	})

	require.Eventually(t, func() bool {
		app := st.get("app-2")
		return app != nil && app.Status == models.StatusRejected
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUnknownApplicationIsDeadLettered(t *testing.T) {
	st := newMemoryStore()
	br := breaker.New("e2e-notfound", 5, time.Minute, logger.NewNoOpLogger())
	f := startPipeline(t, st, br)

	// No seeded row: the decision stage cannot find the application.
	f.submit(t, models.LoanApplicationMessage{
		ApplicationID:    "ghost",
		PANNumber:        "ABCDE1234F",
		MonthlyIncomeINR: 85000,
		LoanAmountINR:    500000,
		LoanType:         models.LoanTypeAuto,
	})

	select {
	case dead := <-f.deadMsgs:
		var dlm models.DeadLetterMessage
		require.NoError(t, json.Unmarshal(dead.Payload, &dlm))
		dead.Ack()
		assert.Equal(t, topicReports, dlm.OriginalTopic)
		assert.Contains(t, dlm.ErrorMessage, "ghost")
	case <-time.After(5 * time.Second):
		t.Fatal("expected a dead letter for the unknown application")
	}
}

func TestStoreOutageTripsBreakerAndParksEnvelope(t *testing.T) {
	st := &failingStore{}
	br := breaker.New("e2e-outage", 3, time.Minute, logger.NewNoOpLogger())
	f := startPipeline(t, st, br)

	f.submit(t, models.LoanApplicationMessage{
		ApplicationID:    "app-3",
		PANNumber:        "ABCDE1234F",
		MonthlyIncomeINR: 85000,
		LoanAmountINR:    500000,
		LoanType:         models.LoanTypeHome,
	})

	// Each store failure nacks the report; redelivery keeps hitting the
	// breaker until it opens, after which the envelope is parked instead.
	select {
	case dead := <-f.deadMsgs:
		var dlm models.DeadLetterMessage
		require.NoError(t, json.Unmarshal(dead.Payload, &dlm))
		dead.Ack()
		assert.Contains(t, dlm.ErrorMessage, "circuit breaker open")
	case <-time.After(10 * time.Second):
		t.Fatal("expected the report to be parked once the breaker opened")
	}

	assert.Equal(t, breaker.StateOpen, br.State())
	assert.Equal(t, 3, st.callCount(), "open breaker must stop store calls")
}
