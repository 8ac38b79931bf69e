package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the viewer's Prometheus collectors. All methods accept a nil
// receiver so components can run without metrics (e.g. in tests).
type Metrics struct {
	registry *prometheus.Registry

	streamMessages   *prometheus.CounterVec
	streamMalformed  prometheus.Counter
	streamReconnects prometheus.Counter
	connectionState  prometheus.Gauge

	polls *prometheus.CounterVec

	framesAssembled prometheus.Counter
	frameLate       prometheus.Gauge
	clockSyncAge    prometheus.Gauge

	displaySubscribers prometheus.Gauge
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		streamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_stream_messages_total",
			Help: "Messages received on the camera feed, by kind",
		}, []string{"kind"}),
		streamMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_stream_malformed_total",
			Help: "Camera feed messages dropped as malformed",
		}),
		streamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_stream_reconnects_total",
			Help: "Reconnect attempts to the camera feed",
		}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_stream_connection_state",
			Help: "Camera feed connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting)",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_polls_total",
			Help: "Polls of backend endpoints, by poller and result",
		}, []string{"poller", "result"}),
		framesAssembled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_frames_assembled_total",
			Help: "Complete (metadata, image) frames assembled",
		}),
		frameLate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_frame_late_seconds",
			Help: "Seconds the next shot is overdue beyond tolerance (0 when fresh)",
		}),
		clockSyncAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_clock_sync_age_seconds",
			Help: "Seconds since the site clock was last synchronized",
		}),
		displaySubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_display_subscribers",
			Help: "Open display websocket subscriptions",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_http_requests_total",
			Help: "Total number of HTTP requests received by the display server",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
	}

	registry.MustRegister(
		m.streamMessages,
		m.streamMalformed,
		m.streamReconnects,
		m.connectionState,
		m.polls,
		m.framesAssembled,
		m.frameLate,
		m.clockSyncAge,
		m.displaySubscribers,
		m.requestsTotal,
		m.errorsTotal,
	)

	return m
}

func (m *Metrics) IncStreamMessage(kind string) {
	if m == nil {
		return
	}
	m.streamMessages.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncStreamMalformed() {
	if m == nil {
		return
	}
	m.streamMalformed.Inc()
}

func (m *Metrics) IncStreamReconnects() {
	if m == nil {
		return
	}
	m.streamReconnects.Inc()
}

func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
}

func (m *Metrics) IncPoll(poller string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.polls.WithLabelValues(poller, result).Inc()
}

func (m *Metrics) IncFramesAssembled() {
	if m == nil {
		return
	}
	m.framesAssembled.Inc()
}

func (m *Metrics) SetFrameLate(seconds float64) {
	if m == nil {
		return
	}
	m.frameLate.Set(seconds)
}

func (m *Metrics) SetClockSyncAge(seconds float64) {
	if m == nil {
		return
	}
	m.clockSyncAge.Set(seconds)
}

func (m *Metrics) AddDisplaySubscribers(delta int) {
	if m == nil {
		return
	}
	m.displaySubscribers.Add(float64(delta))
}

func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
