package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"claim-batch/internal/audit"
	"claim-batch/internal/auth"
	reporting "claim-batch/internal/reporting/domain"
)

type stubGenerator struct {
	rows    []reporting.Row
	err     error
	lastQry reporting.Query
}

func (g *stubGenerator) Generate(ctx context.Context, q reporting.Query) (*reporting.Report, error) {
	g.lastQry = q
	if g.err != nil {
		return nil, g.err
	}
	return reporting.Aggregate(g.rows, reporting.Options{Group: q.Group, ShowClaims: q.ShowClaims})
}

type captureAudit struct {
	entries []audit.Entry
}

func (c *captureAudit) Log(ctx context.Context, entry audit.Entry) error {
	c.entries = append(c.entries, entry)
	return nil
}

func sampleRows() []reporting.Row {
	return []reporting.Row{
		{RegionName: "North", DistrictName: "Hills", HFCode: "HF2", ProductCode: "P1", RemuneratedAmount: decimal.NewFromInt(5),
			ClaimCode: "C2", PriceAsked: decimal.NewFromInt(6), PriceApproved: decimal.NewFromInt(5), PriceAdjusted: decimal.NewFromInt(5)},
		{RegionName: "North", DistrictName: "Hills", HFCode: "HF1", ProductCode: "P1", RemuneratedAmount: decimal.NewFromInt(10),
			ClaimCode: "C1", PriceAsked: decimal.NewFromInt(12), PriceApproved: decimal.NewFromInt(10), PriceAdjusted: decimal.NewFromInt(10)},
	}
}

func newRouter(t *testing.T, gen Generator, logger audit.Logger) http.Handler {
	t.Helper()
	h, err := NewReportHandler(gen, logger, nil)
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), "tenant-a", auth.RoleViewer, "viewer-1")))
		})
	})
	r.Route("/api/v1/reports", h.Routes)
	return r
}

func get(h http.Handler, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/batch?"+query, nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestParseQuery(t *testing.T) {
	values := url.Values{}
	values.Set("locationId", "3")
	values.Set("prodId", "4")
	values.Set("runId", "5")
	values.Set("hfId", "6")
	values.Set("hfLevel", "c")
	values.Set("dateFrom", "2024-03-01")
	values.Set("dateTo", "2024-03-31")
	values.Set("showClaims", "true")
	values.Set("group", "P")

	q, err := ParseQuery(values)
	require.NoError(t, err)
	assert.Equal(t, int64(3), q.LocationID)
	assert.Equal(t, int64(6), q.HFID)
	assert.Equal(t, reporting.LevelHealthCentre, q.HFLevel)
	require.NotNil(t, q.DateTo)
	assert.Equal(t, 31, q.DateTo.Day())
	assert.True(t, q.ShowClaims)
	assert.Equal(t, reporting.GroupProduct, q.Group)

	for _, bad := range []string{"runId=x", "dateFrom=03/01/2024", "group=Z", "hfLevel=Q", "dateFrom=2024-03-10&dateTo=2024-03-01"} {
		parsed, err := url.ParseQuery(bad)
		require.NoError(t, err)
		_, err = ParseQuery(parsed)
		assert.ErrorIs(t, err, reporting.ErrInvalidQuery, bad)
	}
}

func TestReportHandler_JSON(t *testing.T) {
	gen := &stubGenerator{rows: sampleRows()}
	resp := get(newRouter(t, gen, nil), "group=H&runId=9")

	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Template string           `json:"template"`
		Rows     []map[string]any `json:"rows"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "claim_batch_pbh", body.Template)
	require.Len(t, body.Rows, 2)
	assert.Equal(t, "HF1", body.Rows[0]["HFCode"])
	assert.EqualValues(t, 15, body.Rows[0]["SUMD_RemuneratedAmount"])
	assert.EqualValues(t, 10, body.Rows[0]["SUMHF_RemuneratedAmount"])
	assert.Equal(t, int64(9), gen.lastQry.RunID)
}

func TestReportHandler_NoData(t *testing.T) {
	resp := get(newRouter(t, &stubGenerator{}, nil), "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, reporting.CodeNoData, body["code"])
}

func TestReportHandler_BadRequest(t *testing.T) {
	h := newRouter(t, &stubGenerator{rows: sampleRows()}, nil)
	assert.Equal(t, http.StatusBadRequest, get(h, "format=csv").Code)
	assert.Equal(t, http.StatusBadRequest, get(h, "hfLevel=Z").Code)
}

func TestReportHandler_ServiceError(t *testing.T) {
	resp := get(newRouter(t, &stubGenerator{err: errors.New("db down")}, nil), "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestReportHandler_XLSX(t *testing.T) {
	auditLog := &captureAudit{}
	resp := get(newRouter(t, &stubGenerator{rows: sampleRows()}, auditLog), "format=xlsx&showClaims=true&group=H")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "claim_batch_pbc_H.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(resp.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	header, err := f.GetCellValue("rows", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Region", header)
	claim, err := f.GetCellValue("rows", "C2")
	require.NoError(t, err)
	assert.Equal(t, "C1", claim)
	template, err := f.GetCellValue("summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, "claim_batch_pbc_H", template)

	require.Len(t, auditLog.entries, 1)
	assert.Equal(t, "report.export", auditLog.entries[0].Action)
	assert.Equal(t, "viewer-1", auditLog.entries[0].Actor)
}

func TestReportHandler_PDF(t *testing.T) {
	resp := get(newRouter(t, &stubGenerator{rows: sampleRows()}, nil), "format=pdf&group=P")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(resp.Body.Bytes(), []byte("%PDF")))
}
