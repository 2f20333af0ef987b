// internal/stages/decision/handler_test.go
package decision

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prequal-pipeline/internal/common/breaker"
	perrors "prequal-pipeline/internal/common/errors"
	"prequal-pipeline/internal/common/logger"
	"prequal-pipeline/internal/messaging"
	"prequal-pipeline/internal/models"
	"prequal-pipeline/internal/store"
)

type fakeStore struct {
	outcome store.ApplyOutcome
	err     error

	calls   int
	lastID  string
	lastSt  models.Status
	lastScr int
}

func (f *fakeStore) ApplyDecision(ctx context.Context, id string, status models.Status, score int) (store.ApplyOutcome, error) {
	f.calls++
	f.lastID = id
	f.lastSt = status
	f.lastScr = score
	return f.outcome, f.err
}

type recordingNotifier struct {
	err    error
	calls  int
	lastID string
}

func (n *recordingNotifier) DecisionMade(ctx context.Context, applicationID string, status models.Status, score int) error {
	n.calls++
	n.lastID = applicationID
	return n.err
}

func newBreakerForTest(t *testing.T) *breaker.Breaker {
	t.Helper()
	return breaker.New("decision-store-test", 5, 60*time.Second, logger.NewNoOpLogger())
}

func reportEnvelope(t *testing.T, report models.CreditReportMessage) *message.Message {
	t.Helper()
	payload, err := json.Marshal(report)
	require.NoError(t, err)
	return messaging.NewEnvelope(payload, report.ApplicationID, "corr-decision")
}

func kindOf(t *testing.T, err error) perrors.Kind {
	t.Helper()
	kind, ok := perrors.KindOf(err)
	require.True(t, ok, "expected a classified error, got %v", err)
	return kind
}

func TestHandleAppliesDecisionAndNotifies(t *testing.T) {
	st := &fakeStore{outcome: store.OutcomeApplied}
	notifier := &recordingNotifier{}
	h := NewHandler(st, newBreakerForTest(t), notifier, logger.NewTestLogger(t))

	msg := reportEnvelope(t, models.CreditReportMessage{
		ApplicationID:    "app-1",
		CIBILScore:       720,
		MonthlyIncomeINR: 50000,
		LoanAmountINR:    200000,
	})

	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, 1, st.calls)
	assert.Equal(t, "app-1", st.lastID)
	assert.Equal(t, models.StatusPreApproved, st.lastSt)
	assert.Equal(t, 720, st.lastScr)
	assert.Equal(t, 1, notifier.calls)
}

func TestHandleNotifierFailureDoesNotFailEnvelope(t *testing.T) {
	st := &fakeStore{outcome: store.OutcomeApplied}
	notifier := &recordingNotifier{err: errors.New("sns unavailable")}
	h := NewHandler(st, newBreakerForTest(t), notifier, logger.NewTestLogger(t))

	msg := reportEnvelope(t, models.CreditReportMessage{
		ApplicationID:    "app-2",
		CIBILScore:       600,
		MonthlyIncomeINR: 50000,
		LoanAmountINR:    200000,
	})

	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, models.StatusRejected, st.lastSt)
}

func TestHandleClassifiesDuplicate(t *testing.T) {
	st := &fakeStore{outcome: store.OutcomeAlreadyProcessed}
	notifier := &recordingNotifier{}
	h := NewHandler(st, newBreakerForTest(t), notifier, logger.NewTestLogger(t))

	msg := reportEnvelope(t, models.CreditReportMessage{
		ApplicationID:    "app-3",
		CIBILScore:       700,
		MonthlyIncomeINR: 50000,
		LoanAmountINR:    200000,
	})

	err := h.Handle(context.Background(), msg)
	assert.Equal(t, perrors.KindDuplicate, kindOf(t, err))
	assert.Zero(t, notifier.calls, "redelivery must not renotify")
}

func TestHandleClassifiesMissingApplication(t *testing.T) {
	st := &fakeStore{outcome: store.OutcomeNotFound}
	h := NewHandler(st, newBreakerForTest(t), nil, logger.NewTestLogger(t))

	msg := reportEnvelope(t, models.CreditReportMessage{
		ApplicationID:    "ghost",
		CIBILScore:       700,
		MonthlyIncomeINR: 50000,
		LoanAmountINR:    200000,
	})

	err := h.Handle(context.Background(), msg)
	assert.Equal(t, perrors.KindNotFound, kindOf(t, err))
}

func TestHandleClassifiesStoreErrorAsTransient(t *testing.T) {
	st := &fakeStore{err: errors.New("connection refused")}
	h := NewHandler(st, newBreakerForTest(t), nil, logger.NewTestLogger(t))

	msg := reportEnvelope(t, models.CreditReportMessage{
		ApplicationID:    "app-4",
		CIBILScore:       700,
		MonthlyIncomeINR: 50000,
		LoanAmountINR:    200000,
	})

	err := h.Handle(context.Background(), msg)
	assert.Equal(t, perrors.KindTransient, kindOf(t, err))
}

func TestHandleFailsFastWhileBreakerOpen(t *testing.T) {
	st := &fakeStore{err: errors.New("connection refused")}
	br := breaker.New("decision-store-open-test", 2, time.Minute, logger.NewNoOpLogger())
	h := NewHandler(st, br, nil, logger.NewTestLogger(t))

	msg := reportEnvelope(t, models.CreditReportMessage{
		ApplicationID:    "app-5",
		CIBILScore:       700,
		MonthlyIncomeINR: 50000,
		LoanAmountINR:    200000,
	})

	// Two failures trip the breaker.
	for i := 0; i < 2; i++ {
		err := h.Handle(context.Background(), msg)
		assert.Equal(t, perrors.KindTransient, kindOf(t, err))
	}
	assert.Equal(t, breaker.StateOpen, br.State())

	// Open breaker: the store is no longer called and the envelope is
	// classified for parking.
	callsBefore := st.calls
	err := h.Handle(context.Background(), msg)
	assert.Equal(t, perrors.KindResourceExhausted, kindOf(t, err))
	assert.Equal(t, callsBefore, st.calls)
}

func TestHandleRejectsMalformedReport(t *testing.T) {
	st := &fakeStore{outcome: store.OutcomeApplied}
	h := NewHandler(st, newBreakerForTest(t), nil, logger.NewTestLogger(t))

	cases := map[string]string{
		"truncated JSON":      `{"application_id":`,
		"score out of range":  `{"application_id":"a","cibil_score":901,"monthly_income_inr":50000,"loan_amount_inr":100000}`,
		"missing score":       `{"application_id":"a","monthly_income_inr":50000,"loan_amount_inr":100000}`,
		"non-positive amount": `{"application_id":"a","cibil_score":700,"monthly_income_inr":50000,"loan_amount_inr":0}`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			err := h.Handle(context.Background(), messaging.NewEnvelope([]byte(payload), "key", "corr"))
			assert.Equal(t, perrors.KindMalformed, kindOf(t, err))
		})
	}
	assert.Zero(t, st.calls)
}
