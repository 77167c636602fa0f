/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package connlimit caps concurrent downstream connections globally and per client address.
//
// Counters live in a Store. The Limiter prefers a shared (Redis) store so that several relay
// instances enforce one cap together, and falls back to a process-local store whenever the shared
// one misbehaves. A periodic probe switches it back once the shared store answers again.
// Every granted Lease remembers which store granted it and is always returned there.
package connlimit
