/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector collects usage statistics of a cache.
type MetricsCollector interface {
	SetAmount(int)
	IncHits()
	IncMisses()
	AddEvictions(int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	Namespace string
	// Subsystem distinguishes caches of different components. "keys_zone" is used when empty.
	Subsystem   string
	ConstLabels prometheus.Labels
}

// PrometheusMetrics exposes cache statistics as Prometheus metrics.
type PrometheusMetrics struct {
	Entries   prometheus.Gauge
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions prometheus.Counter
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates PrometheusMetrics without a namespace.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates PrometheusMetrics with the given options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	if opts.Subsystem == "" {
		opts.Subsystem = "keys_zone"
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subsystem, Name: name, Help: help, ConstLabels: opts.ConstLabels,
		})
	}
	return &PrometheusMetrics{
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "entries",
			Help:        "Number of keys currently held.",
			ConstLabels: opts.ConstLabels,
		}),
		Hits:      counter("hits_total", "Number of lookups that found the key."),
		Misses:    counter("misses_total", "Number of lookups that did not find the key."),
		Evictions: counter("evictions_total", "Number of least recently used keys evicted to make room for new ones."),
	}
}

// MustRegister registers the metrics in the default Prometheus registry and panics on error.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Entries, pm.Hits, pm.Misses, pm.Evictions)
}

// Unregister removes the metrics from the default Prometheus registry.
func (pm *PrometheusMetrics) Unregister() {
	for _, c := range []prometheus.Collector{pm.Entries, pm.Hits, pm.Misses, pm.Evictions} {
		prometheus.Unregister(c)
	}
}

func (pm *PrometheusMetrics) SetAmount(amount int) { pm.Entries.Set(float64(amount)) }
func (pm *PrometheusMetrics) IncHits()             { pm.Hits.Inc() }
func (pm *PrometheusMetrics) IncMisses()           { pm.Misses.Inc() }
func (pm *PrometheusMetrics) AddEvictions(n int)   { pm.Evictions.Add(float64(n)) }

type disabledMetrics struct{}

func (disabledMetrics) SetAmount(int)    {}
func (disabledMetrics) IncHits()         {}
func (disabledMetrics) IncMisses()       {}
func (disabledMetrics) AddEvictions(int) {}
