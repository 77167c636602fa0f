/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package connlimit

import "github.com/prometheus/client_golang/prometheus"

// Invariant violation kinds used as metric label values.
const (
	violationDoubleRelease = "double_release"
	violationUnderflow     = "underflow"
)

// MetricsCollector represents a collector of connection limiter metrics.
type MetricsCollector interface {
	IncAcquired(kind ScopeKind, source Source)
	IncRejected(kind ScopeKind, source Source)
	IncFailovers()
	IncRecoveries()
	SetDegraded(degraded bool)
	IncReleaseFailures()
	IncInvariantViolations(violation string)
}

// PrometheusMetrics represents Prometheus metrics of the connection limiter.
type PrometheusMetrics struct {
	AcquiredTotal            *prometheus.CounterVec
	RejectedTotal            *prometheus.CounterVec
	FailoversTotal           prometheus.Counter
	RecoveriesTotal          prometheus.Counter
	Degraded                 prometheus.Gauge
	ReleaseFailuresTotal     prometheus.Counter
	InvariantViolationsTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	const subsystem = "rate_limit"
	return &PrometheusMetrics{
		AcquiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "acquired_total",
			Help:      "Number of granted connection slots.",
		}, []string{"scope", "source"}),
		RejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rejected_total",
			Help:      "Number of connection attempts rejected because a scope was saturated.",
		}, []string{"scope", "source"}),
		FailoversTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "store_failovers_total",
			Help:      "Number of switches from the distributed store to the local one.",
		}),
		RecoveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "store_recoveries_total",
			Help:      "Number of switches back to the distributed store.",
		}),
		Degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "store_degraded",
			Help:      "1 if counters are currently evaluated locally because the distributed store is unavailable.",
		}),
		ReleaseFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "release_failures_total",
			Help:      "Number of slots that could not be returned to the distributed store.",
		}),
		InvariantViolationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "invariant_violations_total",
			Help:      "Number of double releases and counter underflows.",
		}, []string{"kind"}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.AcquiredTotal,
		pm.RejectedTotal,
		pm.FailoversTotal,
		pm.RecoveriesTotal,
		pm.Degraded,
		pm.ReleaseFailuresTotal,
		pm.InvariantViolationsTotal,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.AcquiredTotal)
	prometheus.Unregister(pm.RejectedTotal)
	prometheus.Unregister(pm.FailoversTotal)
	prometheus.Unregister(pm.RecoveriesTotal)
	prometheus.Unregister(pm.Degraded)
	prometheus.Unregister(pm.ReleaseFailuresTotal)
	prometheus.Unregister(pm.InvariantViolationsTotal)
}

// IncAcquired increments the number of granted slots.
func (pm *PrometheusMetrics) IncAcquired(kind ScopeKind, source Source) {
	pm.AcquiredTotal.WithLabelValues(kind.String(), source.String()).Inc()
}

// IncRejected increments the number of rejected attempts.
func (pm *PrometheusMetrics) IncRejected(kind ScopeKind, source Source) {
	pm.RejectedTotal.WithLabelValues(kind.String(), source.String()).Inc()
}

// IncFailovers increments the number of switches to the local store.
func (pm *PrometheusMetrics) IncFailovers() {
	pm.FailoversTotal.Inc()
}

// IncRecoveries increments the number of switches back to the distributed store.
func (pm *PrometheusMetrics) IncRecoveries() {
	pm.RecoveriesTotal.Inc()
}

// SetDegraded sets the degraded mode gauge.
func (pm *PrometheusMetrics) SetDegraded(degraded bool) {
	if degraded {
		pm.Degraded.Set(1)
		return
	}
	pm.Degraded.Set(0)
}

// IncReleaseFailures increments the number of failed distributed releases.
func (pm *PrometheusMetrics) IncReleaseFailures() {
	pm.ReleaseFailuresTotal.Inc()
}

// IncInvariantViolations increments the number of invariant violations of the given kind.
func (pm *PrometheusMetrics) IncInvariantViolations(violation string) {
	pm.InvariantViolationsTotal.WithLabelValues(violation).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncAcquired(ScopeKind, Source) {}
func (disabledMetrics) IncRejected(ScopeKind, Source) {}
func (disabledMetrics) IncFailovers()                 {}
func (disabledMetrics) IncRecoveries()                {}
func (disabledMetrics) SetDegraded(bool)              {}
func (disabledMetrics) IncReleaseFailures()           {}
func (disabledMetrics) IncInvariantViolations(string) {}
