package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the downloader.
// All methods are no-ops on a nil *Metrics.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
	segmentsFetched   *prometheus.CounterVec
	segmentsSkipped   *prometheus.CounterVec
	segmentRetries    *prometheus.CounterVec
	segmentBytes      *prometheus.CounterVec
	heartbeatsTotal   prometheus.Counter
	heartbeatFailures prometheus.Counter
	activeSessions    prometheus.Gauge
	activeDownloads   prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hlsdl_requests_total",
		Help: "Total number of status server requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hlsdl_errors_total",
		Help: "Total number of status server responses with error status (4xx or 5xx)",
	})
	segmentsFetched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsdl_segments_fetched_total",
		Help: "Segments downloaded and written to disk",
	}, []string{"rendition"})
	segmentsSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsdl_segments_skipped_total",
		Help: "Segments skipped because the local file already existed",
	}, []string{"rendition"})
	segmentRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsdl_segment_retries_total",
		Help: "Segments re-enqueued after a short response",
	}, []string{"rendition"})
	segmentBytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsdl_segment_bytes_total",
		Help: "Bytes of segment data written to disk",
	}, []string{"rendition"})
	heartbeatsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hlsdl_heartbeats_total",
		Help: "Successful delivery session heartbeats",
	})
	heartbeatFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hlsdl_heartbeat_failures_total",
		Help: "Failed heartbeat attempts, including retried ones",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hlsdl_active_sessions",
		Help: "Delivery sessions currently kept alive",
	})
	activeDownloads := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hlsdl_active_downloads",
		Help: "Downloads that have not finished yet",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		segmentsFetched,
		segmentsSkipped,
		segmentRetries,
		segmentBytes,
		heartbeatsTotal,
		heartbeatFailures,
		activeSessions,
		activeDownloads,
	)

	return &Metrics{
		registry:          registry,
		requestsTotal:     requestsTotal,
		errorsTotal:       errorsTotal,
		segmentsFetched:   segmentsFetched,
		segmentsSkipped:   segmentsSkipped,
		segmentRetries:    segmentRetries,
		segmentBytes:      segmentBytes,
		heartbeatsTotal:   heartbeatsTotal,
		heartbeatFailures: heartbeatFailures,
		activeSessions:    activeSessions,
		activeDownloads:   activeDownloads,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

// SegmentFetched records one segment written to disk with n bytes.
func (m *Metrics) SegmentFetched(rendition string, n int64) {
	if m == nil {
		return
	}
	m.segmentsFetched.WithLabelValues(rendition).Inc()
	m.segmentBytes.WithLabelValues(rendition).Add(float64(n))
}

// SegmentSkipped records a segment already present on disk.
func (m *Metrics) SegmentSkipped(rendition string) {
	if m != nil {
		m.segmentsSkipped.WithLabelValues(rendition).Inc()
	}
}

// SegmentRetried records a segment put back on the pending queue.
func (m *Metrics) SegmentRetried(rendition string) {
	if m != nil {
		m.segmentRetries.WithLabelValues(rendition).Inc()
	}
}

// IncHeartbeats increments the successful heartbeat counter.
func (m *Metrics) IncHeartbeats() {
	if m != nil {
		m.heartbeatsTotal.Inc()
	}
}

// IncHeartbeatFailures increments the failed heartbeat counter.
func (m *Metrics) IncHeartbeatFailures() {
	if m != nil {
		m.heartbeatFailures.Inc()
	}
}

// SessionStarted and SessionStopped move the active sessions gauge.
func (m *Metrics) SessionStarted() {
	if m != nil {
		m.activeSessions.Inc()
	}
}

func (m *Metrics) SessionStopped() {
	if m != nil {
		m.activeSessions.Dec()
	}
}

// SetActiveDownloads sets the active downloads gauge.
func (m *Metrics) SetActiveDownloads(n int) {
	if m != nil {
		m.activeDownloads.Set(float64(n))
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
