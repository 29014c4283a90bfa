package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface, the audit page cache and the change-tracking engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec
	commands        *prometheus.CounterVec
	auditFailures   *prometheus.CounterVec
	stackDepth      *prometheus.GaugeVec
	exports         *prometheus.CounterVec
}

// NewMetricsService registers collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registree_commands_total",
		Help: "Perform, undo and redo transitions by outcome",
	}, []string{"operation", "action", "outcome"})

	auditFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registree_audit_append_failures_total",
		Help: "Audit log appends that failed after the store mutation committed",
	}, []string{"origin"})

	stackDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "registree_history_depth",
		Help: "Current depth of the undo and redo stacks",
	}, []string{"stack"})

	exports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registree_audit_exports_total",
		Help: "Audit log exports by format and outcome",
	}, []string{"format", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		commands, auditFailures, stackDepth, exports, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheLookups:    cacheLookups,
		commands:        commands,
		auditFailures:   auditFailures,
		stackDepth:      stackDepth,
		exports:         exports,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordCommand counts a perform, undo or redo by outcome
// ("ok", "failed", "audit_failed").
func (m *MetricsService) RecordCommand(operation, action, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(operation, action, outcome).Inc()
}

// RecordAuditFailure counts a failed append for the given origin.
func (m *MetricsService) RecordAuditFailure(origin string) {
	if m == nil {
		return
	}
	m.auditFailures.WithLabelValues(origin).Inc()
}

// SetHistoryDepth publishes the stack depths.
func (m *MetricsService) SetHistoryDepth(undo, redo int) {
	if m == nil {
		return
	}
	m.stackDepth.WithLabelValues("undo").Set(float64(undo))
	m.stackDepth.WithLabelValues("redo").Set(float64(redo))
}

// RecordExport counts an audit export attempt.
func (m *MetricsService) RecordExport(format, outcome string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(format, outcome).Inc()
}
