// internal/models/application.go
package models

import "time"

// Status is the lifecycle state of a loan application. PENDING is the only
// non-terminal state; once a decision is applied the status never changes.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusPreApproved  Status = "PRE_APPROVED"
	StatusRejected     Status = "REJECTED"
	StatusManualReview Status = "MANUAL_REVIEW"
)

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPreApproved, StatusRejected, StatusManualReview:
		return true
	}
	return false
}

// LoanType classifies the requested loan.
type LoanType string

const (
	LoanTypePersonal LoanType = "PERSONAL"
	LoanTypeHome     LoanType = "HOME"
	LoanTypeAuto     LoanType = "AUTO"
)

func (t LoanType) Valid() bool {
	switch t {
	case LoanTypePersonal, LoanTypeHome, LoanTypeAuto:
		return true
	}
	return false
}

// Application is the persisted record for one prequalification request.
type Application struct {
	ID               string    `json:"id"`
	PANNumber        string    `json:"pan_number"`
	ApplicantName    string    `json:"applicant_name,omitempty"`
	MonthlyIncomeINR float64   `json:"monthly_income_inr"`
	LoanAmountINR    float64   `json:"loan_amount_inr"`
	LoanType         LoanType  `json:"loan_type"`
	Status           Status    `json:"status"`
	CIBILScore       *int      `json:"cibil_score,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
