package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"claim-batch/internal/audit"
	"claim-batch/internal/auth"
	"claim-batch/internal/batch/application"
	batch "claim-batch/internal/batch/domain"
	"claim-batch/internal/observability/logging"
)

// RunService runs batches and answers status queries.
type RunService interface {
	Run(ctx context.Context, cmd application.RunCommand) (*application.RunSummary, error)
	AlreadyExecuted(ctx context.Context, key batch.RunKey) (bool, error)
}

// BatchHandler handles batch run APIs.
type BatchHandler struct {
	service     RunService
	auditLogger audit.Logger
	logger      *zap.Logger
}

// NewBatchHandler constructs a handler.
func NewBatchHandler(service RunService, auditLogger audit.Logger, logger *zap.Logger) (*BatchHandler, error) {
	if service == nil {
		return nil, errors.New("batch handler: nil service")
	}
	return &BatchHandler{service: service, auditLogger: auditLogger, logger: logging.OrNop(logger)}, nil
}

// Routes mounts the handler under /api/v1/batch-runs.
func (h *BatchHandler) Routes(r chi.Router) {
	r.Post("/", h.handleRun)
	r.Get("/status", h.handleStatus)
}

type runRequest struct {
	Year       int    `json:"year"`
	Month      int    `json:"month"`
	LocationID *int64 `json:"location_id"`
}

type runResponse struct {
	RunID             int64     `json:"run_id"`
	Year              int       `json:"year"`
	Month             int       `json:"month"`
	LocationID        *int64    `json:"location_id"`
	RunDate           time.Time `json:"run_date"`
	Products          int       `json:"products"`
	PlansProcessed    int       `json:"plans_processed"`
	ClaimsValuated    []int64   `json:"claims_valuated"`
	CapitationCreated int       `json:"capitation_created"`
}

type errorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	LegacyCode int    `json:"legacy_code"`
}

func (h *BatchHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, batch.NewInvalidCommand("invalid json"))
		return
	}
	cmd := application.RunCommand{
		AuditUserID: auth.AuditUserIDFromContext(r.Context()),
		LocationID:  req.LocationID,
		Month:       req.Month,
		Year:        req.Year,
	}
	summary, err := h.service.Run(r.Context(), cmd)
	if err != nil {
		h.logger.Info("batch run rejected",
			zap.String("key", cmd.Key().String()),
			zap.Error(err),
		)
		respondError(w, err)
		h.logAudit(r, cmd.Key(), "", "batch.run.failed", map[string]any{"error": err.Error()})
		return
	}

	run := summary.Run
	resp := runResponse{
		RunID:             run.ID(),
		Year:              run.Key().Year,
		Month:             run.Key().Month,
		LocationID:        run.Key().LocationID,
		RunDate:           run.RunDate(),
		Products:          summary.Products,
		PlansProcessed:    summary.PlansProcessed,
		ClaimsValuated:    summary.ClaimsValuated,
		CapitationCreated: summary.CapitationCreated,
	}
	if resp.ClaimsValuated == nil {
		resp.ClaimsValuated = []int64{}
	}
	writeJSON(w, http.StatusCreated, resp)
	h.logAudit(r, run.Key(), strconv.FormatInt(run.ID(), 10), "batch.run", map[string]any{
		"year":            run.Key().Year,
		"month":           run.Key().Month,
		"claims_valuated": len(summary.ClaimsValuated),
	})
}

func (h *BatchHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		respondError(w, batch.NewInvalidCommand("year is required"))
		return
	}
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil {
		respondError(w, batch.NewInvalidCommand("month is required"))
		return
	}
	var locationID *int64
	if raw := strings.TrimSpace(q.Get("location_id")); raw != "" {
		loc, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, batch.NewInvalidCommand("invalid location_id"))
			return
		}
		locationID = &loc
	}
	key := batch.NewRunKey(year, month, locationID)
	if err := key.Validate(); err != nil {
		respondError(w, err)
		return
	}
	executed, err := h.service.AlreadyExecuted(r.Context(), key)
	if err != nil {
		respondError(w, batch.NewProcessingError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executed": executed})
}

func (h *BatchHandler) logAudit(r *http.Request, key batch.RunKey, runID, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	entry, ok := audit.FromRequest(r, action, "batch_run", runID, meta)
	if !ok {
		return
	}
	entry.LocationID = key.LocationID
	if err := h.auditLogger.Log(r.Context(), entry); err != nil {
		h.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

// StatusOf maps a run error to its HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, batch.ErrAlreadyRun):
		return http.StatusConflict
	case errors.Is(err, batch.ErrInvalidCommand), errors.Is(err, batch.ErrDataError):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, err error) {
	code, ok := batch.CodeOf(err)
	if !ok {
		code = batch.CodeProcessing
	}
	if errors.Is(err, batch.ErrDataError) {
		code = batch.CodeDataError
	}
	writeJSON(w, StatusOf(err), errorResponse{
		Code:       string(code),
		Message:    err.Error(),
		LegacyCode: application.LegacyErrorOf(err).Code,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
