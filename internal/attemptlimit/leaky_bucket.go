/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package attemptlimit

import (
	"context"
	"fmt"
	"time"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

// LeakyBucketLimiter spaces attempts evenly using GCRA, allowing maxBurst attempts above the rate.
type LeakyBucketLimiter struct {
	gcra *throttled.GCRARateLimiterCtx
}

var _ Limiter = (*LeakyBucketLimiter)(nil)

// NewLeakyBucketLimiter keeps state for at most maxKeys addresses, evicting the least recently used ones.
func NewLeakyBucketLimiter(rate Rate, maxBurst, maxKeys int) (*LeakyBucketLimiter, error) {
	store, err := memstore.NewCtx(maxKeys)
	if err != nil {
		return nil, fmt.Errorf("create GCRA store: %w", err)
	}
	gcra, err := throttled.NewGCRARateLimiterCtx(store, throttled.RateQuota{
		MaxRate:  throttled.PerDuration(rate.Count, rate.Duration),
		MaxBurst: maxBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("create GCRA limiter: %w", err)
	}
	return &LeakyBucketLimiter{gcra}, nil
}

func (l *LeakyBucketLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	limited, res, err := l.gcra.RateLimitCtx(ctx, key, 1)
	switch {
	case err != nil:
		return false, 0, err
	case limited:
		return false, res.RetryAfter, nil
	default:
		return true, 0, nil
	}
}
