// Package metrics provides Prometheus metrics for the full-text index
// storage engine, wrapping client_golang exactly as the teacher's
// internal/metrics package does (promauto counters/histograms/gauges),
// renamed to this domain's own operations: page attach/fix/evict, LOB
// insert/expunge/compact, delayed-merge jobs, KWIC query duration.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Admin gRPC surface
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// PageCache (C1)
	PageAttachTotal  *prometheus.CounterVec // result=hit|miss
	PageEvictedTotal prometheus.Counter
	PageFlushedTotal prometheus.Counter
	CacheResident    prometheus.Gauge

	// LobStore (C3)
	LobInsertTotal  prometheus.Counter
	LobExpungeTotal prometheus.Counter
	LobCompactTotal *prometheus.CounterVec // result=freed|skipped|empty
	LobOpDuration   *prometheus.HistogramVec

	// DelayedMerge (C6)
	MergeJobsEnqueued  prometheus.Counter
	MergeJobsCompleted *prometheus.CounterVec // status=success|error
	MergeDuration      prometheus.Histogram

	// KwicEngine (C7)
	KwicQueriesTotal   prometheus.Counter
	KwicQueryDuration  prometheus.Histogram
	KwicPatternsTotal  prometheus.Counter

	// Server
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{ServerStartTime: time.Now()}

	m.GrpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "fulltext2_grpc_requests_total", Help: "Total number of admin gRPC requests"},
		[]string{"method", "status"},
	)
	m.GrpcRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Name: "fulltext2_grpc_request_duration_seconds", Help: "Duration of admin gRPC requests", Buckets: prometheus.DefBuckets},
		[]string{"method"},
	)
	m.GrpcRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{Name: "fulltext2_grpc_requests_in_flight", Help: "Admin gRPC requests currently in flight"},
	)

	m.PageAttachTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "fulltext2_page_attach_total", Help: "Page cache attach calls by outcome"},
		[]string{"result"},
	)
	m.PageEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{Name: "fulltext2_page_evicted_total", Help: "Clean pages evicted from the LRU list"},
	)
	m.PageFlushedTotal = promauto.NewCounter(
		prometheus.CounterOpts{Name: "fulltext2_page_flushed_total", Help: "Dirty pages flushed to the physical file"},
	)
	m.CacheResident = promauto.NewGauge(
		prometheus.GaugeOpts{Name: "fulltext2_cache_resident_pages", Help: "Pages currently resident in the page cache"},
	)

	m.LobInsertTotal = promauto.NewCounter(
		prometheus.CounterOpts{Name: "fulltext2_lob_insert_total", Help: "Total LOB inserts"},
	)
	m.LobExpungeTotal = promauto.NewCounter(
		prometheus.CounterOpts{Name: "fulltext2_lob_expunge_total", Help: "Total LOB logical expunges"},
	)
	m.LobCompactTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "fulltext2_lob_compact_total", Help: "LOB compact() outcomes"},
		[]string{"result"},
	)
	m.LobOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Name: "fulltext2_lob_op_duration_seconds", Help: "LOB store operation latency", Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1}},
		[]string{"op"},
	)

	m.MergeJobsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{Name: "fulltext2_merge_jobs_enqueued_total", Help: "Discard jobs enqueued to the delayed-merge pool"},
	)
	m.MergeJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "fulltext2_merge_jobs_completed_total", Help: "Delayed-merge jobs completed by status"},
		[]string{"status"},
	)
	m.MergeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{Name: "fulltext2_merge_duration_seconds", Help: "Delayed-merge job latency", Buckets: prometheus.DefBuckets},
	)

	m.KwicQueriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{Name: "fulltext2_kwic_queries_total", Help: "Total KWIC extraction calls"},
	)
	m.KwicQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{Name: "fulltext2_kwic_query_duration_seconds", Help: "KWIC extraction latency", Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1}},
	)
	m.KwicPatternsTotal = promauto.NewCounter(
		prometheus.CounterOpts{Name: "fulltext2_kwic_patterns_registered_total", Help: "Patterns registered into the PatternChecker"},
	)

	m.ServerUptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{Name: "fulltext2_server_uptime_seconds", Help: "Server uptime in seconds"},
	)

	go m.updateUptime()
	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// RecordGrpcRequest records an admin gRPC request with its status.
func (m *Metrics) RecordGrpcRequest(method, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordPageAttach records a page-cache attach outcome ("hit" or "miss").
func (m *Metrics) RecordPageAttach(result string) {
	m.PageAttachTotal.WithLabelValues(result).Inc()
}

// RecordLobOp records a LOB-store operation's latency.
func (m *Metrics) RecordLobOp(op string, duration time.Duration) {
	m.LobOpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordMergeJob records a completed delayed-merge job.
func (m *Metrics) RecordMergeJob(status string, duration time.Duration) {
	m.MergeJobsCompleted.WithLabelValues(status).Inc()
	m.MergeDuration.Observe(duration.Seconds())
}

// RecordKwicQuery records one KWIC extraction call.
func (m *Metrics) RecordKwicQuery(duration time.Duration) {
	m.KwicQueriesTotal.Inc()
	m.KwicQueryDuration.Observe(duration.Seconds())
}
