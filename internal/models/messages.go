// internal/models/messages.go
package models

import (
	"encoding/json"
	"time"
)

// LoanApplicationMessage travels on the applications.submitted topic.
// Published by prequal-api, consumed by the credit stage.
type LoanApplicationMessage struct {
	ApplicationID    string    `json:"application_id"`
	PANNumber        string    `json:"pan_number"`
	ApplicantName    string    `json:"applicant_name,omitempty"`
	MonthlyIncomeINR float64   `json:"monthly_income_inr"`
	LoanAmountINR    float64   `json:"loan_amount_inr"`
	LoanType         LoanType  `json:"loan_type"`
	Timestamp        time.Time `json:"timestamp"`
	CorrelationID    string    `json:"correlation_id"`
}

// CreditReportMessage travels on the credit.reports topic.
// Published by the credit stage, consumed by the decision stage.
type CreditReportMessage struct {
	ApplicationID    string    `json:"application_id"`
	PANNumber        string    `json:"pan_number"`
	CIBILScore       int       `json:"cibil_score"`
	MonthlyIncomeINR float64   `json:"monthly_income_inr"`
	LoanAmountINR    float64   `json:"loan_amount_inr"`
	LoanType         LoanType  `json:"loan_type"`
	Timestamp        time.Time `json:"timestamp"`
	CorrelationID    string    `json:"correlation_id"`
}

// DeadLetterMessage wraps an envelope that could not be processed and is
// parked on the processing.deadletter topic for operator follow-up.
type DeadLetterMessage struct {
	OriginalTopic string          `json:"original_topic"`
	Payload       json.RawMessage `json:"payload"`
	ErrorMessage  string          `json:"error_message"`
	RetryCount    int             `json:"retry_count"`
	FailedAt      time.Time       `json:"failed_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// MaskPAN hides the middle of a PAN number for log output.
func MaskPAN(pan string) string {
	if len(pan) < 4 {
		return "****"
	}
	return pan[:2] + "******" + pan[len(pan)-2:]
}
