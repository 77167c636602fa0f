/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains helpers shared by the relay's tests:
// free ports, refusal body assertions, metric sample counters and a fake sequencer websocket server.
package testutil

type tHelper interface {
	Helper()
}
