// Package metrics exposes Prometheus collectors for the transport and the
// protocol layer. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clearnode"

// Metrics holds all client collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	connectionStatus prometheus.Gauge
	reconnects       prometheus.Counter
	framesSent       prometheus.Counter
	framesReceived   prometheus.Counter
	queueDepth       prometheus.Gauge

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pending         prometheus.Gauge

	authAttempts *prometheus.CounterVec
	authState    prometheus.Gauge
	appSessions  *prometheus.GaugeVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "status",
			Help:      "Connection status: 0 disconnected, 1 connecting, 2 connected.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "reconnects_total",
			Help:      "Scheduled reconnect attempts.",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frames_sent_total",
			Help:      "Frames written to the socket.",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frames_received_total",
			Help:      "Frames read from the socket.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "queue_depth",
			Help:      "Frames waiting for a connection.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Signed requests by method and outcome.",
		}, []string{"method", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Time from send to response.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "pending_requests",
			Help:      "Requests awaiting a response.",
		}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Authentication attempts by outcome.",
		}, []string{"outcome"}),
		authState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "state",
			Help:      "Authentication state machine position.",
		}),
		appSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "app",
			Name:      "sessions",
			Help:      "Known application sessions by status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.connectionStatus,
		m.reconnects,
		m.framesSent,
		m.framesReceived,
		m.queueDepth,
		m.requests,
		m.requestDuration,
		m.pending,
		m.authAttempts,
		m.authState,
		m.appSessions,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetConnectionStatus ...
func (m *Metrics) SetConnectionStatus(s int) {
	if m == nil {
		return
	}
	m.connectionStatus.Set(float64(s))
}

// IncReconnects ...
func (m *Metrics) IncReconnects() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// FrameSent ...
func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.framesSent.Inc()
}

// FrameReceived ...
func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

// SetQueueDepth ...
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// ObserveRequest records the outcome of one signed request.
func (m *Metrics) ObserveRequest(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	if outcome == "ok" {
		m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
	}
}

// SetPending ...
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// AuthAttempt ...
func (m *Metrics) AuthAttempt(outcome string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(outcome).Inc()
}

// SetAuthState ...
func (m *Metrics) SetAuthState(s int) {
	if m == nil {
		return
	}
	m.authState.Set(float64(s))
}

// SetAppSessions ...
func (m *Metrics) SetAppSessions(active, closed int) {
	if m == nil {
		return
	}
	m.appSessions.WithLabelValues("open").Set(float64(active))
	m.appSessions.WithLabelValues("closed").Set(float64(closed))
}
