/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package upstream

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector represents a collector of upstream link metrics.
type MetricsCollector interface {
	SetState(state State)
	IncConnectAttempts()
	IncConnectFailures()
	IncDisconnects()
	ObserveBackoff(delay time.Duration)
	AddReceived(bytes int)
}

// PrometheusMetrics represents Prometheus metrics of the upstream link.
type PrometheusMetrics struct {
	State                *prometheus.GaugeVec
	ConnectAttemptsTotal prometheus.Counter
	ConnectFailuresTotal prometheus.Counter
	DisconnectsTotal     prometheus.Counter
	BackoffSeconds       prometheus.Histogram
	FramesReceivedTotal  prometheus.Counter
	BytesReceivedTotal   prometheus.Counter
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	const subsystem = "upstream"
	return &PrometheusMetrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state",
			Help:      "1 for the current state of the upstream link, 0 for the others.",
		}, []string{"state"}),
		ConnectAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connect_attempts_total",
			Help:      "Number of attempts to connect to the upstream.",
		}),
		ConnectFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connect_failures_total",
			Help:      "Number of failed attempts to connect to the upstream.",
		}),
		DisconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "disconnects_total",
			Help:      "Number of established upstream connections that were lost.",
		}),
		BackoffSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "backoff_seconds",
			Help:      "Delays chosen before reconnecting to the upstream.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
		FramesReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Number of frames received from the upstream.",
		}),
		BytesReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_received_total",
			Help:      "Number of payload bytes received from the upstream.",
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.State,
		pm.ConnectAttemptsTotal,
		pm.ConnectFailuresTotal,
		pm.DisconnectsTotal,
		pm.BackoffSeconds,
		pm.FramesReceivedTotal,
		pm.BytesReceivedTotal,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.State)
	prometheus.Unregister(pm.ConnectAttemptsTotal)
	prometheus.Unregister(pm.ConnectFailuresTotal)
	prometheus.Unregister(pm.DisconnectsTotal)
	prometheus.Unregister(pm.BackoffSeconds)
	prometheus.Unregister(pm.FramesReceivedTotal)
	prometheus.Unregister(pm.BytesReceivedTotal)
}

// SetState marks the given state as the current one.
func (pm *PrometheusMetrics) SetState(state State) {
	for s := range stateNames {
		v := 0.0
		if State(s) == state {
			v = 1
		}
		pm.State.WithLabelValues(State(s).String()).Set(v)
	}
}

// IncConnectAttempts increments the number of connect attempts.
func (pm *PrometheusMetrics) IncConnectAttempts() {
	pm.ConnectAttemptsTotal.Inc()
}

// IncConnectFailures increments the number of failed connect attempts.
func (pm *PrometheusMetrics) IncConnectFailures() {
	pm.ConnectFailuresTotal.Inc()
}

// IncDisconnects increments the number of lost connections.
func (pm *PrometheusMetrics) IncDisconnects() {
	pm.DisconnectsTotal.Inc()
}

// ObserveBackoff records the chosen reconnect delay.
func (pm *PrometheusMetrics) ObserveBackoff(delay time.Duration) {
	pm.BackoffSeconds.Observe(delay.Seconds())
}

// AddReceived records a received frame of the given size.
func (pm *PrometheusMetrics) AddReceived(bytes int) {
	pm.FramesReceivedTotal.Inc()
	pm.BytesReceivedTotal.Add(float64(bytes))
}

type disabledMetrics struct{}

func (disabledMetrics) SetState(State)               {}
func (disabledMetrics) IncConnectAttempts()          {}
func (disabledMetrics) IncConnectFailures()          {}
func (disabledMetrics) IncDisconnects()              {}
func (disabledMetrics) ObserveBackoff(time.Duration) {}
func (disabledMetrics) AddReceived(int)              {}
