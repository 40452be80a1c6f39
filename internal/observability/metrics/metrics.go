package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "claimbatch_"

	resultSuccess = "success"
	resultError   = "error"

	resultAlreadyRun = "already_run"
	resultSkipped    = "skipped"
	resultGenerated  = "generated"
	resultNoData     = "nodata"

	cacheHit   = "hit"
	cacheMiss  = "miss"
	cacheError = "error"
)

var (
	registerOnce sync.Once

	batchRunTotal   *prometheus.CounterVec
	batchRunLatency *prometheus.HistogramVec
	claimsValuated  prometheus.Counter

	calculationDispatchTotal *prometheus.CounterVec

	capitationTotal *prometheus.CounterVec

	reportAggregateTotal   *prometheus.CounterVec
	reportAggregateLatency *prometheus.HistogramVec
	reportExportTotal      *prometheus.CounterVec
	reportExportLatency    *prometheus.HistogramVec
	reportCacheTotal       *prometheus.CounterVec

	outboxPublishTotal    *prometheus.CounterVec
	outboxPublishLatency  *prometheus.HistogramVec
	outboxDispatchTotal   *prometheus.CounterVec
	outboxDispatchLatency *prometheus.HistogramVec
	outboxDispatchEvents  *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		batchRunTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "batch_run_total",
				Help: "Total batch runs by result",
			},
			[]string{"result"},
		)
		batchRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "batch_run_latency_seconds",
				Help:    "Batch run latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"result"},
		)
		claimsValuated = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "claims_valuated_total",
				Help: "Total claims moved to valuated by batch runs",
			},
		)

		calculationDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "calculation_dispatch_total",
				Help: "Total calculation dispatches by context and result",
			},
			[]string{"context", "result"},
		)

		capitationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "capitation_trigger_total",
				Help: "Total capitation checks by outcome",
			},
			[]string{"outcome"},
		)

		reportAggregateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_aggregate_total",
				Help: "Total report aggregations by group and result",
			},
			[]string{"group", "result"},
		)
		reportAggregateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_aggregate_latency_seconds",
				Help:    "Report fetch and aggregation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"group", "result"},
		)
		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		reportExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)
		reportCacheTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_cache_total",
				Help: "Report row cache lookups by outcome",
			},
			[]string{"outcome"},
		)

		outboxPublishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_publish_total",
				Help: "Total outbox publish operations by result",
			},
			[]string{"result"},
		)
		outboxPublishLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_publish_latency_seconds",
				Help:    "Outbox publish latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Total outbox dispatch runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_latency_seconds",
				Help:    "Outbox dispatch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_events_total",
				Help: "Outbox events handled by dispatch outcome",
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			batchRunTotal,
			batchRunLatency,
			claimsValuated,
			calculationDispatchTotal,
			capitationTotal,
			reportAggregateTotal,
			reportAggregateLatency,
			reportExportTotal,
			reportExportLatency,
			reportCacheTotal,
			outboxPublishTotal,
			outboxPublishLatency,
			outboxDispatchTotal,
			outboxDispatchLatency,
			outboxDispatchEvents,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveBatchRun records batch run latency and result.
func ObserveBatchRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if batchRunTotal != nil {
		batchRunTotal.WithLabelValues(result).Inc()
	}
	if batchRunLatency != nil {
		batchRunLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddClaimsValuated increments the valuated claim counter.
func AddClaimsValuated(count int) {
	if count <= 0 {
		return
	}
	if claimsValuated != nil {
		claimsValuated.Add(float64(count))
	}
}

// IncCalculationDispatch counts a dispatch for a calculation context.
func IncCalculationDispatch(context, result string) {
	if context == "" {
		context = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if calculationDispatchTotal != nil {
		calculationDispatchTotal.WithLabelValues(context, result).Inc()
	}
}

// IncCapitation counts a capitation check outcome.
func IncCapitation(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if capitationTotal != nil {
		capitationTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveReportAggregate records report aggregation latency and result.
func ObserveReportAggregate(group, result string, duration time.Duration) {
	if group == "" {
		group = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportAggregateTotal != nil {
		reportAggregateTotal.WithLabelValues(group, result).Inc()
	}
	if reportAggregateLatency != nil {
		reportAggregateLatency.WithLabelValues(group, result).Observe(duration.Seconds())
	}
}

// ObserveReportExport records export latency and result.
func ObserveReportExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, result).Inc()
	}
	if reportExportLatency != nil {
		reportExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncReportCache counts a report cache lookup (hit, miss or error).
func IncReportCache(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if reportCacheTotal != nil {
		reportCacheTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveOutboxPublish records outbox insert latency and result.
func ObserveOutboxPublish(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if outboxPublishTotal != nil {
		outboxPublishTotal.WithLabelValues(result).Inc()
	}
	if outboxPublishLatency != nil {
		outboxPublishLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveOutboxDispatch records one dispatch run.
func ObserveOutboxDispatch(result string, duration time.Duration, sent, failed, dlq int) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchLatency != nil {
		outboxDispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if outboxDispatchEvents != nil {
		if sent > 0 {
			outboxDispatchEvents.WithLabelValues("sent").Add(float64(sent))
		}
		if failed > 0 {
			outboxDispatchEvents.WithLabelValues("failed").Add(float64(failed))
		}
		if dlq > 0 {
			outboxDispatchEvents.WithLabelValues("dlq").Add(float64(dlq))
		}
	}
}

// Exported constants for callers.
const (
	ResultSuccess    = resultSuccess
	ResultError      = resultError
	ResultAlreadyRun = resultAlreadyRun
	ResultNoData     = resultNoData

	CacheHit   = cacheHit
	CacheMiss  = cacheMiss
	CacheError = cacheError

	CapitationSkipped   = resultSkipped
	CapitationGenerated = resultGenerated
)
