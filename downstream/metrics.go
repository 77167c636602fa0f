/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package downstream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Reasons of refused connection attempts.
const (
	RejectReasonLimitGlobal     = "limit_global"
	RejectReasonLimitPerAddress = "limit_per_address"
	RejectReasonUnavailable     = "limiter_unavailable"
	RejectReasonUpgradeFailed   = "upgrade_failed"
	RejectReasonShuttingDown    = "shutting_down"
	RejectReasonUnauthorized    = "unauthorized"
	RejectReasonOrigin          = "origin_not_allowed"
	RejectReasonNotWebsocket    = "not_websocket"
	RejectReasonThrottled       = "throttled"
)

// Reasons of client disconnects.
const (
	DisconnectReasonClientClosed = "client_closed"
	DisconnectReasonReadLimit    = "read_limit"
	DisconnectReasonTimeout      = "timeout"
	DisconnectReasonReadError    = "read_error"
	DisconnectReasonWriteError   = "write_error"
	DisconnectReasonShed         = "shed"
	DisconnectReasonShutdown     = "shutdown"
)

// MetricsCollector represents a collector of downstream connection metrics.
type MetricsCollector interface {
	ClientConnected()
	ClientDisconnected(reason string)
	IncRejected(reason string)
	IncConnectionsByAPIKey(key string)
	AddSent(bytes int)
}

// PrometheusMetrics represents Prometheus metrics of downstream connections.
type PrometheusMetrics struct {
	Connections              prometheus.Gauge
	ConnectionsTotal         prometheus.Counter
	DisconnectsTotal         *prometheus.CounterVec
	RejectedTotal            *prometheus.CounterVec
	ConnectionsByAPIKeyTotal *prometheus.CounterVec
	FramesSentTotal          prometheus.Counter
	BytesSentTotal           prometheus.Counter
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	const subsystem = "downstream"
	return &PrometheusMetrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections",
			Help:      "Number of currently admitted downstream connections.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections_total",
			Help:      "Number of admitted downstream connections.",
		}),
		DisconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "disconnects_total",
			Help:      "Number of closed downstream connections.",
		}, []string{"reason"}),
		RejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rejected_total",
			Help:      "Number of refused connection attempts.",
		}, []string{"reason"}),
		ConnectionsByAPIKeyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_by_api_key_total",
			Help:      "Number of admitted connections per (truncated) API key.",
		}, []string{"key"}),
		FramesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "Number of frames written to downstream connections.",
		}),
		BytesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_sent_total",
			Help:      "Number of payload bytes written to downstream connections.",
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.Connections,
		pm.ConnectionsTotal,
		pm.DisconnectsTotal,
		pm.RejectedTotal,
		pm.ConnectionsByAPIKeyTotal,
		pm.FramesSentTotal,
		pm.BytesSentTotal,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Connections)
	prometheus.Unregister(pm.ConnectionsTotal)
	prometheus.Unregister(pm.DisconnectsTotal)
	prometheus.Unregister(pm.RejectedTotal)
	prometheus.Unregister(pm.ConnectionsByAPIKeyTotal)
	prometheus.Unregister(pm.FramesSentTotal)
	prometheus.Unregister(pm.BytesSentTotal)
}

// ClientConnected records an admitted connection.
func (pm *PrometheusMetrics) ClientConnected() {
	pm.Connections.Inc()
	pm.ConnectionsTotal.Inc()
}

// ClientDisconnected records a closed connection.
func (pm *PrometheusMetrics) ClientDisconnected(reason string) {
	pm.Connections.Dec()
	pm.DisconnectsTotal.WithLabelValues(reason).Inc()
}

// IncRejected increments the number of refused attempts.
func (pm *PrometheusMetrics) IncRejected(reason string) {
	pm.RejectedTotal.WithLabelValues(reason).Inc()
}

// IncConnectionsByAPIKey increments the number of connections admitted with the key.
func (pm *PrometheusMetrics) IncConnectionsByAPIKey(key string) {
	pm.ConnectionsByAPIKeyTotal.WithLabelValues(key).Inc()
}

// AddSent records a frame written to a client.
func (pm *PrometheusMetrics) AddSent(bytes int) {
	pm.FramesSentTotal.Inc()
	pm.BytesSentTotal.Add(float64(bytes))
}

type disabledMetrics struct{}

func (disabledMetrics) ClientConnected()              {}
func (disabledMetrics) ClientDisconnected(string)     {}
func (disabledMetrics) IncRejected(string)            {}
func (disabledMetrics) IncConnectionsByAPIKey(string) {}
func (disabledMetrics) AddSent(int)                   {}
