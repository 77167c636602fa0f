/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package connlimit

import "context"

// Store keeps connection counters. Check-and-increment must be atomic per scope.
type Store interface {
	// IncrementIfBelowLimit increments the counter if its current value is below limit
	// and returns the new value. ErrAtLimit is returned otherwise.
	IncrementIfBelowLimit(ctx context.Context, scope Scope, limit int64) (int64, error)

	// Decrement decrements the counter and returns the new value.
	// ErrUnderflow is returned (and the counter is left at zero) if it was already zero.
	Decrement(ctx context.Context, scope Scope) (int64, error)
}

// DistributedStore is a Store shared between relay instances.
type DistributedStore interface {
	Store

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Touch extends the lifetime of the counters of the given scopes.
	Touch(ctx context.Context, scopes []Scope) error

	// Add increments the counters unconditionally, all of them or none.
	// It accounts slots that were granted while the store was unreachable.
	Add(ctx context.Context, counts map[Scope]int64) error

	// Close releases the underlying connections.
	Close() error
}
