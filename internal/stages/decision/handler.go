// internal/stages/decision/handler.go

// Package decision hosts the second pipeline stage: it consumes credit
// reports, applies the prequalification rules, and writes the outcome to the
// record store exactly once per application.
package decision

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"

	"prequal-pipeline/internal/common/breaker"
	"prequal-pipeline/internal/common/errors"
	"prequal-pipeline/internal/common/logger"
	"prequal-pipeline/internal/common/validation"
	"prequal-pipeline/internal/models"
	"prequal-pipeline/internal/notify"
	"prequal-pipeline/internal/store"
)

const reportSchema = `{
	"type": "object",
	"required": ["application_id", "cibil_score", "monthly_income_inr", "loan_amount_inr"],
	"properties": {
		"application_id": {"type": "string", "minLength": 1},
		"cibil_score": {"type": "integer", "minimum": 300, "maximum": 900},
		"monthly_income_inr": {"type": "number", "exclusiveMinimum": 0},
		"loan_amount_inr": {"type": "number", "exclusiveMinimum": 0}
	}
}`

var reportValidator = validation.MustValidator(reportSchema)

// DecisionStore is the slice of the record store the handler needs.
type DecisionStore interface {
	ApplyDecision(ctx context.Context, id string, status models.Status, score int) (store.ApplyOutcome, error)
}

// Handler processes one credit report into a persisted decision.
type Handler struct {
	store    DecisionStore
	breaker  *breaker.Breaker
	notifier notify.Notifier
	logger   logger.Logger
}

func NewHandler(st DecisionStore, br *breaker.Breaker, notifier notify.Notifier, log logger.Logger) *Handler {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Handler{store: st, breaker: br, notifier: notifier, logger: log}
}

// Handle validates the report, decides, and applies the decision through the
// circuit breaker. The persisted write is the side effect the consumer
// runtime acks against.
func (h *Handler) Handle(ctx context.Context, msg *message.Message) error {
	if err := reportValidator.Validate(msg.Payload); err != nil {
		return errors.Malformed("credit report failed validation", err)
	}

	var report models.CreditReportMessage
	if err := json.Unmarshal(msg.Payload, &report); err != nil {
		return errors.Malformed("credit report is not valid JSON", err)
	}

	status := Decide(report.CIBILScore, report.MonthlyIncomeINR, report.LoanAmountINR)

	h.logger.Info("decision made", map[string]interface{}{
		"applicationId": report.ApplicationID,
		"cibilScore":    report.CIBILScore,
		"status":        string(status),
	})

	result, err := h.breaker.Execute(func() (interface{}, error) {
		return h.store.ApplyDecision(ctx, report.ApplicationID, status, report.CIBILScore)
	})
	if err != nil {
		if breaker.IsOpen(err) {
			// Fail fast while the store is shedding load; the envelope is
			// parked rather than hammering a struggling database.
			return errors.ResourceExhausted("record store circuit breaker open")
		}
		return errors.Transient("decision write failed", err)
	}

	switch result.(store.ApplyOutcome) {
	case store.OutcomeAlreadyProcessed:
		return errors.Duplicate(report.ApplicationID)
	case store.OutcomeNotFound:
		return errors.NotFound(report.ApplicationID)
	}

	// Notification is best-effort; the decision is already durable.
	if err := h.notifier.DecisionMade(ctx, report.ApplicationID, status, report.CIBILScore); err != nil {
		h.logger.Warn("decision notification failed", map[string]interface{}{
			"applicationId": report.ApplicationID,
			"error":         err.Error(),
		})
	}

	return nil
}
