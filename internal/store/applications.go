// internal/store/applications.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"prequal-pipeline/internal/common/logger"
	"prequal-pipeline/internal/models"
)

// ApplyOutcome is the result of a decision write attempt.
type ApplyOutcome int

const (
	OutcomeApplied ApplyOutcome = iota
	OutcomeAlreadyProcessed
	OutcomeNotFound
)

func (o ApplyOutcome) String() string {
	switch o {
	case OutcomeApplied:
		return "APPLIED"
	case OutcomeAlreadyProcessed:
		return "ALREADY_PROCESSED"
	case OutcomeNotFound:
		return "NOT_FOUND"
	}
	return "UNKNOWN"
}

// ApplicationStore persists loan applications in Postgres.
type ApplicationStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewApplicationStore(db *sql.DB, log logger.Logger) *ApplicationStore {
	return &ApplicationStore{db: db, logger: log}
}

// Create inserts a new application in PENDING state.
func (s *ApplicationStore) Create(ctx context.Context, app *models.Application) error {
	now := time.Now().UTC()
	app.Status = models.StatusPending
	app.CreatedAt = now
	app.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loan_applications
		 (id, pan_number, applicant_name, monthly_income_inr, loan_amount_inr, loan_type, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		app.ID, app.PANNumber, app.ApplicantName, app.MonthlyIncomeINR,
		app.LoanAmountINR, app.LoanType, app.Status, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert application %s: %w", app.ID, err)
	}
	return nil
}

// FindByID loads one application. Returns sql.ErrNoRows when absent.
func (s *ApplicationStore) FindByID(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	var score sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, pan_number, applicant_name, monthly_income_inr, loan_amount_inr,
		        loan_type, status, cibil_score, created_at, updated_at
		 FROM loan_applications WHERE id = $1`, id).
		Scan(&app.ID, &app.PANNumber, &app.ApplicantName, &app.MonthlyIncomeINR,
			&app.LoanAmountINR, &app.LoanType, &app.Status, &score,
			&app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if score.Valid {
		v := int(score.Int64)
		app.CIBILScore = &v
	}
	return &app, nil
}

// ApplyDecision writes the terminal status and score for one application.
// The row is locked for the duration of the transaction and mutated only if
// it is still PENDING, so redelivered decision envelopes become no-ops
// instead of overwriting an earlier outcome.
func (s *ApplicationStore) ApplyDecision(ctx context.Context, id string, status models.Status, score int) (ApplyOutcome, error) {
	if !status.IsTerminal() {
		return OutcomeNotFound, fmt.Errorf("decision status %q is not terminal", status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return OutcomeNotFound, fmt.Errorf("begin decision tx for %s: %w", id, err)
	}
	defer tx.Rollback()

	var current models.Status
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM loan_applications WHERE id = $1 FOR UPDATE`, id).
		Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return OutcomeNotFound, nil
	}
	if err != nil {
		return OutcomeNotFound, fmt.Errorf("lock application %s: %w", id, err)
	}

	if current != models.StatusPending {
		// A previous delivery already decided this application.
		if err := tx.Commit(); err != nil {
			return OutcomeAlreadyProcessed, fmt.Errorf("commit no-op tx for %s: %w", id, err)
		}
		return OutcomeAlreadyProcessed, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE loan_applications SET status = $1, cibil_score = $2, updated_at = $3 WHERE id = $4`,
		status, score, time.Now().UTC(), id)
	if err != nil {
		return OutcomeNotFound, fmt.Errorf("update application %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return OutcomeNotFound, fmt.Errorf("commit decision for %s: %w", id, err)
	}

	s.logger.Info("decision applied", map[string]interface{}{
		"applicationId": id,
		"status":        string(status),
	})
	return OutcomeApplied, nil
}
