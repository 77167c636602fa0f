/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package retry repeats failed operations (shared counter store calls, for instance)
// according to a backoff policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy creates a fresh backoff for every retried operation.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// PolicyFunc is an adapter to allow the use of ordinary functions as Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff calls f().
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// NewConstantBackoffPolicy retries up to maxRetries times (unlimited if 0) waiting interval between attempts.
func NewConstantBackoffPolicy(interval time.Duration, maxRetries int) Policy {
	return PolicyFunc(func() backoff.BackOff {
		return withMaxRetries(backoff.NewConstantBackOff(interval), maxRetries)
	})
}

// NewExponentialBackoffPolicy retries up to maxRetries times (unlimited if 0)
// with delays growing from initialInterval.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetries int) Policy {
	return PolicyFunc(func() backoff.BackOff {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = initialInterval
		eb.MaxElapsedTime = 0
		return withMaxRetries(eb, maxRetries)
	})
}

func withMaxRetries(b backoff.BackOff, maxRetries int) backoff.BackOff {
	if maxRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(maxRetries))
	}
	b.Reset()
	return b
}

// DoWithRetry calls fn until it succeeds, the policy gives up or ctx is done.
// isRetryable may mark errors as permanent (nil means every error is retried).
// notify, if not nil, is called before every retry with the error and the delay.
// The last error of fn is returned.
func DoWithRetry(
	ctx context.Context, p Policy, isRetryable func(error) bool, notify backoff.Notify, fn func(ctx context.Context) error,
) error {
	b := backoff.WithContext(p.NewBackOff(), ctx)
	return backoff.RetryNotify(func() error {
		err := fn(ctx)
		if err != nil && isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, notify)
}
