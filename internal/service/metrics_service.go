package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/civic-tracker-api/internal/dto"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic,
// the stats cache and the tracking workflow.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	submissions   prometheus.Counter
	transitions   *prometheus.CounterVec
	assignments   *prometheus.CounterVec
	escalations   prometheus.Counter
	delayAlerts   *prometheus.CounterVec
	autoApprovals prometheus.Counter
	sweepDuration prometheus.Histogram
	lastSweep     prometheus.Gauge
	otpIssued     *prometheus.CounterVec
	otpDelivery   *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
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
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	submissions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_applications_submitted_total",
		Help: "Applications submitted by citizens",
	})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_status_transitions_total",
		Help: "Applied status transitions by target status",
	}, []string{"status"})

	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_assignments_total",
		Help: "Assignment attempts by trigger and outcome",
	}, []string{"trigger", "outcome"})

	escalations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_escalations_total",
		Help: "Applications escalated after a rejected resolution",
	})

	delayAlerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_delay_alerts_total",
		Help: "Delay alerts by recipient kind and outcome",
	}, []string{"recipient", "outcome"})

	autoApprovals := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_auto_approvals_total",
		Help: "Applications auto-approved by the monitor",
	})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_monitor_sweep_seconds",
		Help:    "Duration of monitor sweeps",
		Buckets: prometheus.DefBuckets,
	})

	lastSweep := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_monitor_last_sweep_timestamp_seconds",
		Help: "Unix time of the last completed monitor sweep",
	})

	otpIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_otp_issued_total",
		Help: "One-time codes issued by channel and purpose",
	}, []string{"channel", "purpose"})

	otpDelivery := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_otp_delivery_total",
		Help: "One-time code delivery attempts by outcome",
	}, []string{"channel", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		submissions, transitions, assignments, escalations, delayAlerts, autoApprovals, sweepDuration, lastSweep,
		otpIssued, otpDelivery, goroutines,
	)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		submissions:     submissions,
		transitions:     transitions,
		assignments:     assignments,
		escalations:     escalations,
		delayAlerts:     delayAlerts,
		autoApprovals:   autoApprovals,
		sweepDuration:   sweepDuration,
		lastSweep:       lastSweep,
		otpIssued:       otpIssued,
		otpDelivery:     otpDelivery,
	}
}

// Registry exposes the underlying registry for tests.
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

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordSubmission counts a new application.
func (m *MetricsService) RecordSubmission() {
	if m == nil {
		return
	}
	m.submissions.Inc()
}

// RecordTransition counts an applied status change.
func (m *MetricsService) RecordTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// RecordAssignment counts an assignment attempt. outcome is "assigned" or "no_candidate".
func (m *MetricsService) RecordAssignment(trigger, outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(trigger, outcome).Inc()
}

// RecordEscalation counts a rejected resolution.
func (m *MetricsService) RecordEscalation() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

// RecordDelayAlert counts a delay alert. outcome is "sent" or "suppressed".
func (m *MetricsService) RecordDelayAlert(recipient, outcome string) {
	if m == nil {
		return
	}
	m.delayAlerts.WithLabelValues(recipient, outcome).Inc()
}

// ObserveSweep records a completed monitor sweep.
func (m *MetricsService) ObserveSweep(report dto.MonitorReport) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(report.Duration.Seconds())
	m.lastSweep.Set(float64(report.StartedAt.Add(report.Duration).Unix()))
	m.autoApprovals.Add(float64(report.AutoApproved))
}

// RecordOTPIssued counts an issued code.
func (m *MetricsService) RecordOTPIssued(channel, purpose string) {
	if m == nil {
		return
	}
	m.otpIssued.WithLabelValues(channel, purpose).Inc()
}

// RecordOTPDelivery counts a delivery attempt outcome.
func (m *MetricsService) RecordOTPDelivery(channel, outcome string) {
	if m == nil {
		return
	}
	m.otpDelivery.WithLabelValues(channel, outcome).Inc()
}
