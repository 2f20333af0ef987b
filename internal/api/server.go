// internal/api/server.go

// Package api exposes the ingress surface: applications come in over HTTP,
// are persisted as PENDING, and are handed to the pipeline via Kafka.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"prequal-pipeline/internal/cache"
	"prequal-pipeline/internal/common/logger"
	"prequal-pipeline/internal/common/validation"
	"prequal-pipeline/internal/messaging"
	"prequal-pipeline/internal/models"
	"prequal-pipeline/internal/store"
)

const submitSchema = `{
	"type": "object",
	"required": ["pan_number", "monthly_income_inr", "loan_amount_inr", "loan_type"],
	"properties": {
		"pan_number": {"type": "string", "pattern": "^[A-Z]{5}[0-9]{4}[A-Z]$"},
		"applicant_name": {"type": "string", "maxLength": 200},
		"monthly_income_inr": {"type": "number", "exclusiveMinimum": 0},
		"loan_amount_inr": {"type": "number", "exclusiveMinimum": 0},
		"loan_type": {"type": "string", "enum": ["PERSONAL", "HOME", "AUTO"]}
	}
}`

var submitValidator = validation.MustValidator(submitSchema)

// Server handles application submission and status lookup.
type Server struct {
	store          *store.ApplicationStore
	publisher      *messaging.Publisher
	statusCache    *cache.StatusCache
	submittedTopic string
	logger         logger.Logger
}

func NewServer(
	st *store.ApplicationStore,
	publisher *messaging.Publisher,
	statusCache *cache.StatusCache,
	submittedTopic string,
	log logger.Logger,
) *Server {
	return &Server{
		store:          st,
		publisher:      publisher,
		statusCache:    statusCache,
		submittedTopic: submittedTopic,
		logger:         log,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/applications", s.handleSubmit)
	r.Get("/applications/{id}", s.handleStatus)

	return r
}

type submitRequest struct {
	PANNumber        string          `json:"pan_number"`
	ApplicantName    string          `json:"applicant_name"`
	MonthlyIncomeINR float64         `json:"monthly_income_inr"`
	LoanAmountINR    float64         `json:"loan_amount_inr"`
	LoanType         models.LoanType `json:"loan_type"`
}

type submitResponse struct {
	ApplicationID string        `json:"application_id"`
	Status        models.Status `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmit persists the application first and only then publishes to the
// pipeline. If the publish exhausts its retries, the row exists but the
// pipeline never saw it; the caller gets a 503 naming the application so an
// operator can resubmit it.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if err := submitValidator.Validate(raw); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var req submitRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	app := &models.Application{
		ID:               uuid.NewString(),
		PANNumber:        req.PANNumber,
		ApplicantName:    req.ApplicantName,
		MonthlyIncomeINR: req.MonthlyIncomeINR,
		LoanAmountINR:    req.LoanAmountINR,
		LoanType:         req.LoanType,
	}

	if err := s.store.Create(r.Context(), app); err != nil {
		s.logger.Error("application insert failed", map[string]interface{}{
			"error": err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not persist application"})
		return
	}

	correlationID := middleware.GetReqID(r.Context())
	msg := models.LoanApplicationMessage{
		ApplicationID:    app.ID,
		PANNumber:        app.PANNumber,
		ApplicantName:    app.ApplicantName,
		MonthlyIncomeINR: app.MonthlyIncomeINR,
		LoanAmountINR:    app.LoanAmountINR,
		LoanType:         app.LoanType,
		Timestamp:        time.Now().UTC(),
		CorrelationID:    correlationID,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not encode application"})
		return
	}

	if err := s.publisher.Publish(r.Context(), s.submittedTopic, app.ID, payload, correlationID); err != nil {
		s.logger.Error("application accepted but not enqueued", map[string]interface{}{
			"applicationId": app.ID,
			"error":         err.Error(),
		})
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error: "application " + app.ID + " was recorded but could not be enqueued; retry later",
		})
		return
	}

	s.logger.Info("application submitted", map[string]interface{}{
		"applicationId": app.ID,
		"pan":           models.MaskPAN(app.PANNumber),
	})
	writeJSON(w, http.StatusAccepted, submitResponse{ApplicationID: app.ID, Status: app.Status})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.statusCache != nil {
		if app, _ := s.statusCache.Get(r.Context(), id); app != nil {
			writeJSON(w, http.StatusOK, app)
			return
		}
	}

	app, err := s.store.FindByID(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "application not found"})
		return
	}
	if err != nil {
		s.logger.Error("application lookup failed", map[string]interface{}{
			"applicationId": id,
			"error":         err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "lookup failed"})
		return
	}

	if s.statusCache != nil {
		s.statusCache.Set(r.Context(), app)
	}
	writeJSON(w, http.StatusOK, app)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Run serves until ctx is cancelled, then drains with the given timeout.
func Run(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, log logger.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api server listening", map[string]interface{}{"address": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
