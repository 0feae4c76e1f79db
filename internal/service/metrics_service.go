package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-library-api/internal/models"
)

const metricsNamespace = "library"

// Ledger event labels.
const (
	LedgerEventLoan   = "loan"
	LedgerEventReturn = "return"
	LedgerEventReview = "review"
)

// ledgerOutcomeOK is the outcome label of a committed ledger mutation.
const ledgerOutcomeOK = "ok"

// tally accumulates a count and total duration for averages in Snapshot.
type tally struct {
	count atomic.Uint64
	nanos atomic.Uint64
}

func (t *tally) add(d time.Duration) {
	t.count.Add(1)
	t.nanos.Add(uint64(d.Nanoseconds()))
}

func (t *tally) averageMs() float64 {
	n := t.count.Load()
	if n == 0 {
		return 0
	}
	return float64(t.nanos.Load()) / float64(n) / float64(time.Millisecond)
}

// MetricsService owns the Prometheus registry of the API. Running totals
// are kept alongside the collectors for the JSON summary.
type MetricsService struct {
	handler http.Handler

	httpDuration *prometheus.HistogramVec
	httpTotal    *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	cacheLatency *prometheus.HistogramVec
	queryLatency *prometheus.HistogramVec
	ledgerEvents *prometheus.CounterVec
	reportJobs   *prometheus.CounterVec

	requests     tally
	queries      tally
	cacheHits    atomic.Uint64
	cacheMisses  atomic.Uint64
	loans        atomic.Uint64
	returns      atomic.Uint64
	reviews      atomic.Uint64
	rejections   atomic.Uint64
	reportsReady atomic.Uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &MetricsService{
		handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		httpTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "path", "status"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stats_cache_lookups_total",
			Help:      "Statistics cache lookups by result",
		}, []string{"result"}),
		cacheLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stats_cache_seconds",
			Help:      "Statistics cache round trip latency",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"op"}),
		queryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stats_query_seconds",
			Help:      "Latency of the statistics aggregation queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		ledgerEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ledger_events_total",
			Help:      "Loan, return and review attempts by outcome",
		}, []string{"event", "outcome"}),
		reportJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "report_jobs_total",
			Help:      "Report job status transitions by type",
		}, []string{"type", "status"}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "goroutines",
		Help:      "Number of live goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.httpTotal.WithLabelValues(method, path, code).Inc()
	m.requests.add(duration)
}

// RecordCacheOperation records a statistics cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("get").Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		m.cacheHits.Add(1)
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
	m.cacheMisses.Add(1)
}

// ObserveCacheWrite tracks statistics cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("set").Observe(duration.Seconds())
}

// ObserveDBQuery records the latency of a statistics query.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.queryLatency.WithLabelValues(label).Observe(duration.Seconds())
	m.queries.add(duration)
}

// RecordLedgerEvent counts a ledger mutation; outcome is "ok" or the error code.
func (m *MetricsService) RecordLedgerEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.ledgerEvents.WithLabelValues(event, outcome).Inc()
	if outcome != ledgerOutcomeOK {
		m.rejections.Add(1)
		return
	}
	switch event {
	case LedgerEventLoan:
		m.loans.Add(1)
	case LedgerEventReturn:
		m.returns.Add(1)
	case LedgerEventReview:
		m.reviews.Add(1)
	}
}

// RecordReportJob counts a report job status transition.
func (m *MetricsService) RecordReportJob(reportType models.ReportType, status models.ReportStatus) {
	if m == nil {
		return
	}
	m.reportJobs.WithLabelValues(string(reportType), string(status)).Inc()
	if status == models.ReportStatusFinished {
		m.reportsReady.Add(1)
	}
}

// Snapshot returns the running totals since process start.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := m.cacheHits.Load()
	misses := m.cacheMisses.Load()

	var ratio float64
	if lookups := hits + misses; lookups > 0 {
		ratio = float64(hits) / float64(lookups)
	}

	return models.SystemMetrics{
		CacheHitRatio:            ratio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            m.requests.count.Load(),
		AverageRequestDurationMs: m.requests.averageMs(),
		DBQueryCount:             m.queries.count.Load(),
		AverageDBQueryDurationMs: m.queries.averageMs(),
		LoansCreated:             m.loans.Load(),
		LoansReturned:            m.returns.Load(),
		ReviewsSubmitted:         m.reviews.Load(),
		LedgerRejections:         m.rejections.Load(),
		ReportsFinished:          m.reportsReady.Load(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
