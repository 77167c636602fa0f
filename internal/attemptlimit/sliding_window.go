/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package attemptlimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/acronis/go-wsrelay/lrucache"
)

// SlidingWindowLimiter implements sliding window rate limiting algorithm.
// Each address gets its own window; the least recently seen addresses are evicted when maxKeys is reached.
type SlidingWindowLimiter struct {
	keysZone *lrucache.LRUCache[string, *slidingwindow.Limiter]
	maxRate  Rate
}

// NewSlidingWindowLimiter creates a new sliding window limiter.
// The metrics collector of the keys zone may be nil.
func NewSlidingWindowLimiter(maxRate Rate, maxKeys int, keysZoneMetrics lrucache.MetricsCollector) (*SlidingWindowLimiter, error) {
	keysZone, err := lrucache.New[string, *slidingwindow.Limiter](maxKeys, keysZoneMetrics)
	if err != nil {
		return nil, fmt.Errorf("new LRU keys zone: %w", err)
	}
	return &SlidingWindowLimiter{keysZone: keysZone, maxRate: maxRate}, nil
}

// Allow reports whether one more attempt for the key is allowed.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	lim, _ := l.keysZone.GetOrAdd(key, l.newWindowLimiter)
	if lim.Allow() {
		return true, 0, nil
	}
	now := time.Now()
	return false, now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration).Sub(now), nil
}

func (l *SlidingWindowLimiter) newWindowLimiter() *slidingwindow.Limiter {
	lim, _ := slidingwindow.NewLimiter(l.maxRate.Duration, int64(l.maxRate.Count),
		func() (slidingwindow.Window, slidingwindow.StopFunc) {
			return slidingwindow.NewLocalWindow()
		})
	return lim
}
