/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package connlimit

import (
	"errors"
	"fmt"
)

// ErrAtLimit is returned by Store when the counter has already reached the limit.
var ErrAtLimit = errors.New("counter is at limit")

// ErrUnderflow is returned by Store when a counter would go below zero. The counter is clamped to zero.
var ErrUnderflow = errors.New("counter underflow")

// ErrLimitExceeded is matched (via errors.Is) by every *LimitExceededError.
var ErrLimitExceeded = errors.New("connection limit exceeded")

// LimitExceededError is returned when a connection cannot be admitted because a scope is saturated.
type LimitExceededError struct {
	Scope Scope
}

func (e *LimitExceededError) Error() string {
	if e.Scope.Kind == ScopeKindAddress {
		return fmt.Sprintf("connection limit exceeded for address %s", e.Scope.Address)
	}
	return "global connection limit exceeded"
}

// Is makes errors.Is(err, ErrLimitExceeded) true.
func (e *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}
