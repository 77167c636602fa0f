/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package upstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoff_GrowthAndReset(t *testing.T) {
	b := NewBackoff(BackoffOpts{Min: 50 * time.Millisecond, Max: time.Second, Multiplier: 2})

	want := []time.Duration{
		50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond,
		800 * time.Millisecond, time.Second, time.Second, time.Second,
	}
	for i, w := range want {
		require.Equal(t, w, b.Next(), "attempt %d", i+1)
		require.Equal(t, i+1, b.Attempt())
	}

	b.Reset()
	require.Equal(t, 0, b.Attempt())
	require.Equal(t, 50*time.Millisecond, b.Next())
}

func TestBackoff_NonDecreasingWithoutJitter(t *testing.T) {
	b := NewBackoff(BackoffOpts{Min: 10 * time.Millisecond, Max: 20 * time.Second, Multiplier: 1.5})
	prev := time.Duration(0)
	for i := 0; i < 100; i++ {
		d := b.Next()
		require.GreaterOrEqual(t, d, prev)
		require.LessOrEqual(t, d, 20*time.Second)
		prev = d
	}
	require.Equal(t, 20*time.Second, prev)
}

func TestBackoff_NonDecreasingWithDefaults(t *testing.T) {
	for run := 0; run < 50; run++ {
		b := NewBackoff(BackoffOpts{
			Min:        DefaultBackoffMin,
			Max:        DefaultBackoffMax,
			Multiplier: DefaultBackoffMultiplier,
			Jitter:     DefaultBackoffJitter,
		})
		prev := time.Duration(0)
		for i := 0; i < 40; i++ {
			d := b.Next()
			require.GreaterOrEqual(t, d, prev, "run %d, attempt %d", run, i+1)
			require.GreaterOrEqual(t, d, DefaultBackoffMin)
			require.LessOrEqual(t, d, DefaultBackoffMax)
			prev = d
		}
		require.Equal(t, DefaultBackoffMax, prev)

		b.Reset()
		require.Less(t, b.Next(), DefaultBackoffMax)
	}
}

func TestBackoff_JitterStaysWithinBounds(t *testing.T) {
	const minDelay, maxDelay = 50 * time.Millisecond, 2 * time.Second
	b := NewBackoff(BackoffOpts{Min: minDelay, Max: maxDelay, Multiplier: 2, Jitter: 0.5})
	for i := 0; i < 1000; i++ {
		if i%20 == 0 {
			b.Reset()
		}
		d := b.Next()
		require.GreaterOrEqual(t, d, minDelay)
		require.LessOrEqual(t, d, maxDelay)
	}
}

func TestState_String(t *testing.T) {
	require.Equal(t, "disconnected", StateDisconnected.String())
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "connected", StateConnected.String())
	require.Equal(t, "backoff", StateBackoff.String())
	require.Equal(t, "unknown", State(42).String())
}
