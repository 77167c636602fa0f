/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides a bounded in-memory cache with LRU eviction and Prometheus metrics.
// The relay uses it as a keys zone for per-address state that must not grow without bound.
package lrucache
