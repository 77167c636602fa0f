/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package downstream

import (
	"errors"
	"fmt"

	"github.com/acronis/go-wsrelay/connlimit"
)

// ErrShuttingDown is returned by Registry.Admit when the registry is being stopped.
var ErrShuttingDown = errors.New("registry is shutting down")

// AdmissionErrorKind classifies why a candidate was not admitted.
type AdmissionErrorKind int

// Admission error kinds.
const (
	// KindLimitExceeded means the global or the per-address connection cap is saturated.
	KindLimitExceeded AdmissionErrorKind = iota
	// KindUnavailable means no limiter decision could be made in time.
	KindUnavailable
	// KindUpgradeFailed means the websocket handshake failed after slots were granted.
	KindUpgradeFailed
)

// AdmissionError is returned by Registry.Admit when a candidate is refused.
type AdmissionError struct {
	Kind AdmissionErrorKind
	// Scope is set for KindLimitExceeded only.
	Scope connlimit.Scope
	Err   error
}

func (e *AdmissionError) Error() string {
	switch e.Kind {
	case KindLimitExceeded:
		return e.Err.Error()
	case KindUnavailable:
		return fmt.Sprintf("connection limiter is unavailable: %v", e.Err)
	default:
		return fmt.Sprintf("websocket upgrade failed: %v", e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *AdmissionError) Unwrap() error {
	return e.Err
}
