package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"claim-batch/internal/observability/logging"
	"claim-batch/internal/observability/metrics"
	reporting "claim-batch/internal/reporting/domain"
)

// Source runs the processed-batch report queries.
type Source interface {
	SummaryRows(ctx context.Context, q reporting.Query) ([]reporting.Row, error)
	ClaimRows(ctx context.Context, q reporting.Query) ([]reporting.Row, error)
}

// Cache stores raw report rows by query key.
type Cache interface {
	Get(ctx context.Context, key string) ([]reporting.Row, bool, error)
	Set(ctx context.Context, key string, rows []reporting.Row) error
}

// ReportService fetches, caches and aggregates batch reports.
type ReportService struct {
	source Source
	cache  Cache
	logger *zap.Logger
}

// NewReportService constructs a ReportService. cache may be nil.
func NewReportService(source Source, cache Cache, logger *zap.Logger) (*ReportService, error) {
	if source == nil {
		return nil, errors.New("report service: nil source")
	}
	return &ReportService{source: source, cache: cache, logger: logging.OrNop(logger)}, nil
}

// Generate builds the aggregated report for q.
func (s *ReportService) Generate(ctx context.Context, q reporting.Query) (*reporting.Report, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveReportAggregate(string(q.Group), result, time.Since(start))
	}()

	if err := q.Validate(); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	rows, err := s.rows(ctx, q)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	report, err := reporting.Aggregate(rows, reporting.Options{Group: q.Group, ShowClaims: q.ShowClaims})
	if err != nil {
		result = metrics.ResultError
		if errors.Is(err, reporting.ErrNoData) {
			result = metrics.ResultNoData
		}
		return nil, err
	}
	return report, nil
}

func (s *ReportService) rows(ctx context.Context, q reporting.Query) ([]reporting.Row, error) {
	key := q.CacheKey()
	if s.cache != nil {
		rows, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.IncReportCache(metrics.CacheError)
			s.logger.Warn("report cache get failed", zap.String("key", key), zap.Error(err))
		case ok:
			metrics.IncReportCache(metrics.CacheHit)
			return rows, nil
		default:
			metrics.IncReportCache(metrics.CacheMiss)
		}
	}

	var (
		rows []reporting.Row
		err  error
	)
	if q.ShowClaims {
		rows, err = s.source.ClaimRows(ctx, q)
	} else {
		rows, err = s.source.SummaryRows(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("report query: %w", err)
	}

	if s.cache != nil && len(rows) > 0 {
		if err := s.cache.Set(ctx, key, rows); err != nil {
			s.logger.Warn("report cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return rows, nil
}
