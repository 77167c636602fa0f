/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// CounterValue returns the current value of the counter.
func CounterValue(t require.TestingT, counter prometheus.Counter) float64 {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var m dto.Metric
	require.NoError(t, counter.Write(&m))
	return m.GetCounter().GetValue()
}

// GaugeValue returns the current value of the gauge.
func GaugeValue(t require.TestingT, gauge prometheus.Gauge) float64 {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var m dto.Metric
	require.NoError(t, gauge.Write(&m))
	return m.GetGauge().GetValue()
}

// RequireSamplesCountInHistogram asserts that the histogram has recorded the expected number of observations.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Histogram, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var m dto.Metric
	require.NoError(t, hist.Write(&m))
	require.Equal(t, wantSamplesCount, int(m.GetHistogram().GetSampleCount()))
}

// HistogramSampleSum returns the sum of all observations recorded by the histogram.
func HistogramSampleSum(t require.TestingT, hist prometheus.Histogram) float64 {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var m dto.Metric
	require.NoError(t, hist.Write(&m))
	return m.GetHistogram().GetSampleSum()
}
