package application

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reporting "claim-batch/internal/reporting/domain"
)

type fakeSource struct {
	summary      []reporting.Row
	claims       []reporting.Row
	err          error
	summaryCalls int
	claimCalls   int
}

func (f *fakeSource) SummaryRows(ctx context.Context, q reporting.Query) ([]reporting.Row, error) {
	f.summaryCalls++
	return f.summary, f.err
}

func (f *fakeSource) ClaimRows(ctx context.Context, q reporting.Query) ([]reporting.Row, error) {
	f.claimCalls++
	return f.claims, f.err
}

type mapCache struct {
	data   map[string][]reporting.Row
	getErr error
}

func (c *mapCache) Get(ctx context.Context, key string) ([]reporting.Row, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	rows, ok := c.data[key]
	return rows, ok, nil
}

func (c *mapCache) Set(ctx context.Context, key string, rows []reporting.Row) error {
	c.data[key] = rows
	return nil
}

func row(region, district, hf string, amount int64) reporting.Row {
	return reporting.Row{RegionName: region, DistrictName: district, HFCode: hf, ProductCode: "P1", RemuneratedAmount: decimal.NewFromInt(amount)}
}

func TestReportService_SummaryUsesCache(t *testing.T) {
	src := &fakeSource{summary: []reporting.Row{row("R", "D", "HF1", 10), row("R", "D", "HF2", 5)}}
	cache := &mapCache{data: map[string][]reporting.Row{}}
	svc, err := NewReportService(src, cache, nil)
	require.NoError(t, err)

	q := reporting.Query{Group: reporting.GroupFacility, RunID: 4}
	rep, err := svc.Generate(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "claim_batch_pbh", rep.Template)
	assert.Len(t, rep.Rows, 2)
	assert.Contains(t, cache.data, q.CacheKey())

	q.Group = reporting.GroupProduct
	rep, err = svc.Generate(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "claim_batch_pbp", rep.Template)
	assert.Equal(t, 1, src.summaryCalls)
	assert.Equal(t, 0, src.claimCalls)
}

func TestReportService_ClaimsMode(t *testing.T) {
	src := &fakeSource{claims: []reporting.Row{row("R", "D", "HF1", 10)}}
	svc, err := NewReportService(src, nil, nil)
	require.NoError(t, err)

	rep, err := svc.Generate(context.Background(), reporting.Query{Group: reporting.GroupProduct, ShowClaims: true})
	require.NoError(t, err)
	assert.Equal(t, "claim_batch_pbc_P", rep.Template)
	assert.Equal(t, 1, src.claimCalls)
}

func TestReportService_NoData(t *testing.T) {
	cache := &mapCache{data: map[string][]reporting.Row{}}
	svc, err := NewReportService(&fakeSource{}, cache, nil)
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), reporting.Query{Group: reporting.GroupFacility})
	assert.ErrorIs(t, err, reporting.ErrNoData)
	assert.Empty(t, cache.data)
}

func TestReportService_CacheErrorFallsBackToSource(t *testing.T) {
	src := &fakeSource{summary: []reporting.Row{row("R", "D", "HF1", 10)}}
	svc, err := NewReportService(src, &mapCache{data: map[string][]reporting.Row{}, getErr: errors.New("redis down")}, nil)
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), reporting.Query{Group: reporting.GroupFacility})
	require.NoError(t, err)
	assert.Equal(t, 1, src.summaryCalls)
}

func TestReportService_SourceErrorAndValidation(t *testing.T) {
	src := &fakeSource{err: errors.New("timeout")}
	svc, err := NewReportService(src, nil, nil)
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), reporting.Query{Group: reporting.GroupFacility})
	assert.ErrorContains(t, err, "timeout")

	_, err = svc.Generate(context.Background(), reporting.Query{Group: reporting.GroupFacility, HFLevel: "Q"})
	assert.ErrorIs(t, err, reporting.ErrInvalidQuery)
	assert.Equal(t, 1, src.summaryCalls)

	_, err = NewReportService(nil, nil, nil)
	assert.Error(t, err)
}
