/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package attemptlimit throttles how often a single client address may attempt
// a websocket upgrade. It complements the concurrent connection caps: a client
// that keeps reconnecting is rejected before any shared counter is touched.
//
// Two algorithms are available: leaky bucket (GCRA) and sliding window.
// Per-address state is kept in a bounded LRU zone.
package attemptlimit
