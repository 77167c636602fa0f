/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package fanout

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector represents a collector of broadcaster metrics.
type MetricsCollector interface {
	SetSubscribers(n int)
	IncPublished()
	IncDropped()
	IncShed()
	IncUnknownUnsubscribes()
	ObserveSubscriberDrops(n uint64)
}

// PrometheusMetrics represents Prometheus metrics of the broadcaster.
type PrometheusMetrics struct {
	Subscribers              prometheus.Gauge
	FramesPublishedTotal     prometheus.Counter
	FramesDroppedTotal       prometheus.Counter
	SubscribersShedTotal     prometheus.Counter
	UnknownUnsubscribesTotal prometheus.Counter
	SubscriberDroppedFrames  prometheus.Histogram
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	const subsystem = "fanout"
	return &PrometheusMetrics{
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscribers",
			Help:      "Current number of subscribers.",
		}),
		FramesPublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_published_total",
			Help:      "Number of frames published to subscribers.",
		}),
		FramesDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Number of frames dropped because a subscriber queue was full.",
		}),
		SubscribersShedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscribers_shed_total",
			Help:      "Number of subscribers removed for being too slow.",
		}),
		UnknownUnsubscribesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "unknown_unsubscribes_total",
			Help:      "Number of attempts to unsubscribe a subscriber that is not registered.",
		}),
		SubscriberDroppedFrames: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscriber_dropped_frames",
			Help:      "Number of frames dropped per subscriber over its lifetime, observed when it leaves.",
			Buckets:   []float64{0, 1, 5, 20, 100, 500, 2000, 10000},
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.Subscribers,
		pm.FramesPublishedTotal,
		pm.FramesDroppedTotal,
		pm.SubscribersShedTotal,
		pm.UnknownUnsubscribesTotal,
		pm.SubscriberDroppedFrames,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Subscribers)
	prometheus.Unregister(pm.FramesPublishedTotal)
	prometheus.Unregister(pm.FramesDroppedTotal)
	prometheus.Unregister(pm.SubscribersShedTotal)
	prometheus.Unregister(pm.UnknownUnsubscribesTotal)
	prometheus.Unregister(pm.SubscriberDroppedFrames)
}

// SetSubscribers sets the current number of subscribers.
func (pm *PrometheusMetrics) SetSubscribers(n int) {
	pm.Subscribers.Set(float64(n))
}

// IncPublished increments the number of published frames.
func (pm *PrometheusMetrics) IncPublished() {
	pm.FramesPublishedTotal.Inc()
}

// IncDropped increments the number of dropped frames.
func (pm *PrometheusMetrics) IncDropped() {
	pm.FramesDroppedTotal.Inc()
}

// IncShed increments the number of shed subscribers.
func (pm *PrometheusMetrics) IncShed() {
	pm.SubscribersShedTotal.Inc()
}

// IncUnknownUnsubscribes increments the number of unknown unsubscribes.
func (pm *PrometheusMetrics) IncUnknownUnsubscribes() {
	pm.UnknownUnsubscribesTotal.Inc()
}

// ObserveSubscriberDrops observes the number of frames dropped for a subscriber that has left.
func (pm *PrometheusMetrics) ObserveSubscriberDrops(n uint64) {
	pm.SubscriberDroppedFrames.Observe(float64(n))
}

type disabledMetrics struct{}

func (disabledMetrics) SetSubscribers(int)            {}
func (disabledMetrics) IncPublished()                 {}
func (disabledMetrics) IncDropped()                   {}
func (disabledMetrics) IncShed()                      {}
func (disabledMetrics) IncUnknownUnsubscribes()       {}
func (disabledMetrics) ObserveSubscriberDrops(uint64) {}
