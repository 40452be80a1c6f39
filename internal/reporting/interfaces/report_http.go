package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"claim-batch/internal/audit"
	"claim-batch/internal/observability/logging"
	"claim-batch/internal/observability/metrics"
	reporting "claim-batch/internal/reporting/domain"
)

// Generator builds aggregated reports.
type Generator interface {
	Generate(ctx context.Context, q reporting.Query) (*reporting.Report, error)
}

// ReportHandler handles report APIs.
type ReportHandler struct {
	service     Generator
	auditLogger audit.Logger
	logger      *zap.Logger
}

// NewReportHandler constructs a handler.
func NewReportHandler(service Generator, auditLogger audit.Logger, logger *zap.Logger) (*ReportHandler, error) {
	if service == nil {
		return nil, errors.New("report handler: nil service")
	}
	return &ReportHandler{service: service, auditLogger: auditLogger, logger: logging.OrNop(logger)}, nil
}

// Routes mounts the handler under /api/v1/reports.
func (h *ReportHandler) Routes(r chi.Router) {
	r.Get("/batch", h.handleBatch)
}

// ParseQuery reads report filters from URL parameters.
func ParseQuery(values url.Values) (reporting.Query, error) {
	var q reporting.Query
	var err error
	if q.LocationID, err = parseID(values, "locationId"); err != nil {
		return q, err
	}
	if q.ProductID, err = parseID(values, "prodId"); err != nil {
		return q, err
	}
	if q.RunID, err = parseID(values, "runId"); err != nil {
		return q, err
	}
	if q.HFID, err = parseID(values, "hfId"); err != nil {
		return q, err
	}
	q.HFLevel = reporting.FacilityLevel(strings.ToUpper(strings.TrimSpace(values.Get("hfLevel"))))
	if q.DateFrom, err = parseDate(values, "dateFrom"); err != nil {
		return q, err
	}
	if q.DateTo, err = parseDate(values, "dateTo"); err != nil {
		return q, err
	}
	q.ShowClaims = values.Get("showClaims") == "true"
	if q.Group, err = reporting.ParseGroup(values.Get("group")); err != nil {
		return q, err
	}
	return q, q.Validate()
}

func (h *ReportHandler) handleBatch(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "xlsx" && format != "pdf" {
		respondError(w, &reporting.Error{Code: reporting.CodeInvalidQuery, Message: "unknown format " + format})
		return
	}
	q, err := ParseQuery(r.URL.Query())
	if err != nil {
		respondError(w, err)
		return
	}
	rep, err := h.service.Generate(r.Context(), q)
	if err != nil {
		if !errors.Is(err, reporting.ErrNoData) && !errors.Is(err, reporting.ErrInvalidQuery) {
			h.logger.Error("report generation failed", zap.String("template", q.Template()), zap.Error(err))
		}
		respondError(w, err)
		return
	}

	switch format {
	case "json":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rep)
	case "xlsx":
		h.export(w, r, rep, format, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", BuildReportXLSX)
	case "pdf":
		h.export(w, r, rep, format, "application/pdf", BuildReportPDF)
	}
}

type builder func(*reporting.Report, map[string]string) ([]byte, error)

func (h *ReportHandler) export(w http.ResponseWriter, r *http.Request, rep *reporting.Report, format, contentType string, build builder) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveReportExport(format, result, time.Since(start))
	}()

	data, err := build(rep, filterSummary(r.URL.Query()))
	if err != nil {
		result = metrics.ResultError
		h.logger.Error("report export failed", zap.String("format", format), zap.Error(err))
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+rep.Template+"."+format+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, rep, format)
}

func (h *ReportHandler) logAudit(r *http.Request, rep *reporting.Report, format string) {
	if h.auditLogger == nil {
		return
	}
	entry, ok := audit.FromRequest(r, "report.export", "report", rep.Template, map[string]any{
		"format":  format,
		"rows":    len(rep.Rows),
		"filters": filterSummary(r.URL.Query()),
	})
	if !ok {
		return
	}
	if err := h.auditLogger.Log(r.Context(), entry); err != nil {
		h.logger.Warn("audit log failed", zap.Error(err))
	}
}

func filterSummary(values url.Values) map[string]string {
	out := make(map[string]string)
	for _, key := range []string{"locationId", "prodId", "runId", "hfId", "hfLevel", "dateFrom", "dateTo", "showClaims", "group"} {
		if v := strings.TrimSpace(values.Get(key)); v != "" {
			out[key] = v
		}
	}
	return out
}

func parseID(values url.Values, key string) (int64, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &reporting.Error{Code: reporting.CodeInvalidQuery, Message: "invalid " + key}
	}
	return id, nil
}

func parseDate(values url.Values, key string) (*time.Time, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, &reporting.Error{Code: reporting.CodeInvalidQuery, Message: "invalid " + key}
	}
	return &t, nil
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "claim_batch.reports.error"
	var coded *reporting.Error
	if errors.As(err, &coded) {
		code = coded.Code
	}
	switch {
	case errors.Is(err, reporting.ErrNoData):
		status = http.StatusNotFound
	case errors.Is(err, reporting.ErrInvalidQuery):
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": err.Error()})
}
