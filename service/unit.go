/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs the relay's components (HTTP servers, upstream link, probes)
// as units with a common start/stop lifecycle driven by OS signals.
package service

// Unit represents a service unit that can be started and stopped.
type Unit interface {
	// Start begins the unit's operation. It may return immediately after initialization
	// or block for the unit's lifetime.
	//
	// If Start succeeds, it must not write anything to the provided error channel,
	// and the channel must not be used after Start has returned.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start has failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is an interface for objects that can register its own metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
