package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the camera control server.
type Metrics struct {
	registry                *prometheus.Registry
	requestsTotal           prometheus.Counter
	errorsTotal             prometheus.Counter
	streamsStartedTotal     prometheus.Counter
	streamsStoppedTotal     prometheus.Counter
	recordingsStartedTotal  prometheus.Counter
	framesCapturedTotal     prometheus.Counter
	streamActive            prometheus.Gauge
	activeRecordings        prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camera_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camera_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	streamsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camera_streams_started_total",
		Help: "Total number of live streams started",
	})
	streamsStoppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camera_streams_stopped_total",
		Help: "Total number of live streams stopped",
	})
	recordingsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camera_recordings_started_total",
		Help: "Total number of recordings started",
	})
	framesCapturedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camera_frames_captured_total",
		Help: "Total number of still frames captured",
	})
	streamActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camera_stream_active",
		Help: "Whether a live stream pipeline is currently running (0 or 1)",
	})
	activeRecordings := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camera_active_recordings",
		Help: "Number of recording entries currently tracked",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		streamsStartedTotal,
		streamsStoppedTotal,
		recordingsStartedTotal,
		framesCapturedTotal,
		streamActive,
		activeRecordings,
	)

	return &Metrics{
		registry:               registry,
		requestsTotal:          requestsTotal,
		errorsTotal:            errorsTotal,
		streamsStartedTotal:    streamsStartedTotal,
		streamsStoppedTotal:    streamsStoppedTotal,
		recordingsStartedTotal: recordingsStartedTotal,
		framesCapturedTotal:    framesCapturedTotal,
		streamActive:           streamActive,
		activeRecordings:       activeRecordings,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the error response counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncStreamsStarted increments the streams started counter.
func (m *Metrics) IncStreamsStarted() {
	m.streamsStartedTotal.Inc()
}

// IncStreamsStopped increments the streams stopped counter.
func (m *Metrics) IncStreamsStopped() {
	m.streamsStoppedTotal.Inc()
}

// IncRecordingsStarted increments the recordings started counter.
func (m *Metrics) IncRecordingsStarted() {
	m.recordingsStartedTotal.Inc()
}

// AddFramesCaptured adds n to the frames captured counter.
func (m *Metrics) AddFramesCaptured(n int) {
	m.framesCapturedTotal.Add(float64(n))
}

// SetStreamActive sets the stream active gauge.
func (m *Metrics) SetStreamActive(active bool) {
	if active {
		m.streamActive.Set(1)
	} else {
		m.streamActive.Set(0)
	}
}

// SetActiveRecordings sets the active recordings gauge.
func (m *Metrics) SetActiveRecordings(n int) {
	m.activeRecordings.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. stream liveness and recording count).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
