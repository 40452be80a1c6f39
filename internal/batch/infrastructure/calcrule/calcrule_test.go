package calcrule

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claim-batch/internal/batch/application"
	batch "claim-batch/internal/batch/domain"
	"claim-batch/internal/batch/infrastructure/memory"
)

func TestParseCatalog(t *testing.T) {
	catalog, err := ParseCatalog([]byte(`
calculations:
  - id: 0a1b6d54-eef4-4ee6-ac47-2a99cfa5e9a8
    endpoint: http://rules.local/capitation
    timeout: 5s
  - id: fee-for-service
    endpoint: http://rules.local/ffs
    disabled: true
`))
	require.NoError(t, err)
	require.Len(t, catalog.Calculations, 2)
	assert.Equal(t, 5*time.Second, catalog.Calculations[0].Timeout)
	assert.Equal(t, defaultTimeout, catalog.Calculations[1].Timeout)

	registry := application.NewRegistry()
	n, err := catalog.Register(registry, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"0a1b6d54-eef4-4ee6-ac47-2a99cfa5e9a8"}, registry.IDs())
}

func TestParseCatalog_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing id":       "calculations:\n  - endpoint: http://x\n",
		"missing endpoint": "calculations:\n  - id: a\n",
		"duplicate":        "calculations:\n  - id: a\n    endpoint: http://x\n  - id: a\n    endpoint: http://y\n",
		"malformed":        "calculations: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog_EmptyPath(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Empty(t, catalog.Calculations)
}

func window() *batch.Window {
	return &batch.Window{
		Product:   batch.Product{ID: 10, Code: "PRD1"},
		StartDate: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
		Items: []batch.ClaimDetail{
			{ID: 11, Kind: batch.DetailItem, ClaimID: 1, PriceAsked: decimal.NewFromInt(300)},
		},
		Services: []batch.ClaimDetail{
			{ID: 21, Kind: batch.DetailService, ClaimID: 1, PriceAsked: decimal.NewFromInt(200)},
		},
		AllocatedContribution: decimal.NewFromInt(91),
	}
}

func TestHTTPCalculation_AppliesValuations(t *testing.T) {
	var got requestPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"active":true,"reference":"ref-1","valuations":[
			{"kind":"item","id":11,"price":"280.5"},
			{"kind":"service","id":21,"price":"200"}]}`))
	}))
	defer server.Close()

	store := memory.NewStore()
	store.AddDetail(memory.DetailRecord{ClaimDetail: batch.ClaimDetail{ID: 11, Kind: batch.DetailItem, ClaimID: 1}})
	store.AddDetail(memory.DetailRecord{ClaimDetail: batch.ClaimDetail{ID: 21, Kind: batch.DetailService, ClaimID: 1}})

	calc := NewHTTPCalculation(Entry{ID: "remote", Endpoint: server.URL, Timeout: time.Second}, nil)
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx batch.Tx) error {
		results, err := calc.CalculateIfActive(ctx, application.CalculationRequest{
			Context: application.ContextBatchValuate,
			Plan:    batch.PaymentPlan{ID: 100, Code: "PP1"},
			Window:  window(),
			Tx:      tx,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "ref-1", results[0].Reference)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "BatchValuate", got.Context)
	assert.Equal(t, "4", got.PeriodType)
	assert.Equal(t, 1, got.PeriodID)
	assert.Equal(t, "2024-01-01", got.StartDate)
	assert.True(t, got.Allocated.Equal(decimal.NewFromInt(91)))
	assert.Equal(t, []int64{1}, got.Claims)

	item, _ := store.Detail(batch.DetailItem, 11)
	assert.True(t, item.PriceValuated.Decimal.Equal(decimal.RequireFromString("280.5")))
	service, _ := store.Detail(batch.DetailService, 21)
	assert.True(t, service.PriceValuated.Valid)
}

func TestHTTPCalculation_InactiveRule(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"active":false}`))
	}))
	defer server.Close()

	calc := NewHTTPCalculation(Entry{ID: "remote", Endpoint: server.URL}, nil)
	results, err := calc.CalculateIfActive(context.Background(), application.CalculationRequest{Window: window()})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestHTTPCalculation_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rule crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	calc := NewHTTPCalculation(Entry{ID: "remote", Endpoint: server.URL}, nil)
	_, err := calc.CalculateIfActive(context.Background(), application.CalculationRequest{Window: window()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "rule crashed")
}

func TestHTTPCalculation_UnknownKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"active":true,"valuations":[{"kind":"drug","id":1,"price":"1"}]}`))
	}))
	defer server.Close()

	store := memory.NewStore()
	calc := NewHTTPCalculation(Entry{ID: "remote", Endpoint: server.URL}, nil)
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx batch.Tx) error {
		_, err := calc.CalculateIfActive(ctx, application.CalculationRequest{Window: window(), Tx: tx})
		return err
	})
	assert.ErrorIs(t, err, batch.ErrDataError)
}
