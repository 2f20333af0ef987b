// internal/stages/decision/rules.go
package decision

import "prequal-pipeline/internal/models"

const (
	// minimumScore is the CIBIL cutoff below which the application is
	// rejected outright.
	minimumScore = 650

	// loanTermMonths assumes a 4-year repayment window when checking
	// affordability.
	loanTermMonths = 48
)

// Decide maps a credit report onto a terminal status.
//
// Rules, in order:
//  1. score below 650 rejects regardless of income
//  2. monthly income strictly above loan/48 pre-approves
//  3. otherwise the file goes to manual review
func Decide(cibilScore int, monthlyIncomeINR, loanAmountINR float64) models.Status {
	if cibilScore < minimumScore {
		return models.StatusRejected
	}

	requiredMonthlyPayment := loanAmountINR / loanTermMonths
	if monthlyIncomeINR > requiredMonthlyPayment {
		return models.StatusPreApproved
	}

	return models.StatusManualReview
}
