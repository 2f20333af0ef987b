// internal/stages/credit/handler.go

// Package credit hosts the first pipeline stage: it consumes submitted loan
// applications, simulates a bureau score, and publishes a credit report for
// the decision stage.
package credit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"prequal-pipeline/internal/common/errors"
	"prequal-pipeline/internal/common/logger"
	"prequal-pipeline/internal/common/validation"
	"prequal-pipeline/internal/messaging"
	"prequal-pipeline/internal/models"
)

const applicationSchema = `{
	"type": "object",
	"required": ["application_id", "pan_number", "monthly_income_inr", "loan_amount_inr", "loan_type"],
	"properties": {
		"application_id": {"type": "string", "minLength": 1},
		"pan_number": {"type": "string", "pattern": "^[A-Z]{5}[0-9]{4}[A-Z]$"},
		"applicant_name": {"type": "string"},
		"monthly_income_inr": {"type": "number", "exclusiveMinimum": 0},
		"loan_amount_inr": {"type": "number", "exclusiveMinimum": 0},
		"loan_type": {"type": "string", "enum": ["PERSONAL", "HOME", "AUTO"]}
	}
}`

var applicationValidator = validation.MustValidator(applicationSchema)

// Handler processes one submitted application into a credit report.
type Handler struct {
	scorer       *Scorer
	publisher    *messaging.Publisher
	reportsTopic string
	logger       logger.Logger
}

func NewHandler(scorer *Scorer, publisher *messaging.Publisher, reportsTopic string, log logger.Logger) *Handler {
	return &Handler{
		scorer:       scorer,
		publisher:    publisher,
		reportsTopic: reportsTopic,
		logger:       log,
	}
}

// Handle scores the application and publishes the report. The report is keyed
// by application ID so it follows the application's partition downstream.
func (h *Handler) Handle(ctx context.Context, msg *message.Message) error {
	if err := applicationValidator.Validate(msg.Payload); err != nil {
		return errors.Malformed("application envelope failed validation", err)
	}

	var app models.LoanApplicationMessage
	if err := json.Unmarshal(msg.Payload, &app); err != nil {
		return errors.Malformed("application envelope is not valid JSON", err)
	}

	score := h.scorer.Score(app.PANNumber, app.MonthlyIncomeINR, app.LoanType)

	h.logger.Info("credit score calculated", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"pan":           models.MaskPAN(app.PANNumber),
		"cibilScore":    score,
	})

	report := models.CreditReportMessage{
		ApplicationID:    app.ApplicationID,
		PANNumber:        app.PANNumber,
		CIBILScore:       score,
		MonthlyIncomeINR: app.MonthlyIncomeINR,
		LoanAmountINR:    app.LoanAmountINR,
		LoanType:         app.LoanType,
		Timestamp:        time.Now().UTC(),
		CorrelationID:    messaging.CorrelationID(msg),
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return errors.Malformed("credit report could not be encoded", err)
	}

	if err := h.publisher.Publish(ctx, h.reportsTopic, app.ApplicationID, payload, report.CorrelationID); err != nil {
		// The bounded retry inside the publisher already ran; let the broker
		// redeliver the application so scoring is retried as a whole.
		return errors.Transient("credit report publish failed", err)
	}

	return nil
}
