package calcrule

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"claim-batch/internal/batch/application"
	batch "claim-batch/internal/batch/domain"
	"claim-batch/internal/observability/logging"
)

// HTTPCalculation delegates a calculation rule to a remote endpoint.
type HTTPCalculation struct {
	id       string
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPCalculation constructs a calculation for entry.
func NewHTTPCalculation(entry Entry, logger *zap.Logger) *HTTPCalculation {
	timeout := entry.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPCalculation{
		id:       entry.ID,
		endpoint: entry.Endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.OrNop(logger),
	}
}

type requestPayload struct {
	CalculationID string          `json:"calculation_id"`
	Context       string          `json:"context"`
	PlanID        int64           `json:"plan_id"`
	PlanCode      string          `json:"plan_code"`
	ProductID     int64           `json:"product_id"`
	ProductCode   string          `json:"product_code"`
	LocationID    *int64          `json:"location_id,omitempty"`
	AuditUserID   int64           `json:"audit_user_id"`
	StartDate     string          `json:"start_date"`
	EndDate       string          `json:"end_date"`
	PeriodType    string          `json:"period_type"`
	PeriodID      int             `json:"period_id"`
	Allocated     decimal.Decimal `json:"allocated_contribution"`
	HospitalCount int             `json:"hospital_claims"`
	Claims        []int64         `json:"claims"`
	Items         []lineSummary   `json:"items"`
	Services      []lineSummary   `json:"services"`
}

type lineSummary struct {
	ID            int64               `json:"id"`
	ClaimID       int64               `json:"claim_id"`
	Status        int                 `json:"status"`
	Qty           decimal.Decimal     `json:"qty"`
	PriceAsked    decimal.Decimal     `json:"price_asked"`
	PriceApproved decimal.NullDecimal `json:"price_approved"`
	PriceAdjusted decimal.NullDecimal `json:"price_adjusted"`
}

type valuation struct {
	Kind  batch.DetailKind `json:"kind"`
	ID    int64            `json:"id"`
	Price decimal.Decimal  `json:"price"`
}

type responsePayload struct {
	Active     bool        `json:"active"`
	Reference  string      `json:"reference"`
	Detail     string      `json:"detail"`
	Valuations []valuation `json:"valuations"`
}

func summarize(lines []batch.ClaimDetail) []lineSummary {
	out := make([]lineSummary, 0, len(lines))
	for _, d := range lines {
		out = append(out, lineSummary{
			ID:            d.ID,
			ClaimID:       d.ClaimID,
			Status:        d.Status,
			Qty:           d.Qty,
			PriceAsked:    d.PriceAsked,
			PriceApproved: d.PriceApproved,
			PriceAdjusted: d.PriceAdjusted,
		})
	}
	return out
}

func buildRequest(id string, req application.CalculationRequest) requestPayload {
	w := req.Window
	periodType, periodID := w.Period()
	return requestPayload{
		CalculationID: id,
		Context:       string(req.Context),
		PlanID:        req.Plan.ID,
		PlanCode:      req.Plan.Code,
		ProductID:     w.Product.ID,
		ProductCode:   w.Product.Code,
		LocationID:    req.LocationID,
		AuditUserID:   req.AuditUserID,
		StartDate:     batch.DateKey(w.StartDate),
		EndDate:       batch.DateKey(w.EndDate),
		PeriodType:    string(periodType),
		PeriodID:      periodID,
		Allocated:     w.AllocatedContribution,
		HospitalCount: w.HospitalClaimCount(),
		Claims:        w.ClaimIDs(),
		Items:         summarize(w.Items),
		Services:      summarize(w.Services),
	}
}

// CalculateIfActive posts the window to the rule endpoint and writes back
// the returned valuations in the run's transaction.
func (c *HTTPCalculation) CalculateIfActive(ctx context.Context, req application.CalculationRequest) ([]application.CalculationResult, error) {
	if c == nil || c.endpoint == "" {
		return nil, errors.New("http calculation: empty endpoint")
	}
	if req.Window == nil {
		return nil, errors.New("http calculation: nil window")
	}
	body, err := json.Marshal(buildRequest(c.id, req))
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http calculation %s: %w", c.id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("http calculation %s: status %d: %s", c.id, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out responsePayload
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("http calculation %s: decode: %w", c.id, err)
	}
	if !out.Active {
		return nil, nil
	}
	if len(out.Valuations) > 0 && req.Tx == nil {
		return nil, errors.New("http calculation: valuations without transaction")
	}
	for _, v := range out.Valuations {
		if v.Kind != batch.DetailItem && v.Kind != batch.DetailService {
			return nil, batch.NewDataError("calculation %s returned unknown line kind %q", c.id, v.Kind)
		}
		if err := req.Tx.SetValuatedPrice(ctx, v.Kind, v.ID, v.Price); err != nil {
			return nil, err
		}
	}
	c.logger.Debug("remote calculation applied",
		zap.String("calculation_id", c.id),
		zap.String("context", string(req.Context)),
		zap.Int("valuations", len(out.Valuations)),
	)
	return []application.CalculationResult{{Reference: out.Reference, Detail: out.Detail}}, nil
}
