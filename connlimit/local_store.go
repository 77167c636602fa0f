/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package connlimit

import (
	"context"
	"hash/fnv"
	"sync"
)

const localStoreShardsNum = 64

type localStoreShard struct {
	mu       sync.Mutex
	counters map[Scope]int64
}

// LocalStore is an in-process Store. Counters are spread over shards, each guarded by its own mutex.
// A counter is removed as soon as it drops to zero, so idle addresses take no memory.
type LocalStore struct {
	shards [localStoreShardsNum]localStoreShard
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates a new LocalStore.
func NewLocalStore() *LocalStore {
	s := &LocalStore{}
	for i := range s.shards {
		s.shards[i].counters = make(map[Scope]int64)
	}
	return s
}

func (s *LocalStore) shard(scope Scope) *localStoreShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(scope.Key("")))
	return &s.shards[h.Sum32()%localStoreShardsNum]
}

// IncrementIfBelowLimit implements Store.
func (s *LocalStore) IncrementIfBelowLimit(_ context.Context, scope Scope, limit int64) (int64, error) {
	sh := s.shard(scope)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur := sh.counters[scope]
	if cur >= limit {
		return cur, ErrAtLimit
	}
	cur++
	sh.counters[scope] = cur
	return cur, nil
}

// add increments the counter regardless of any limit.
func (s *LocalStore) add(scope Scope) {
	sh := s.shard(scope)
	sh.mu.Lock()
	sh.counters[scope]++
	sh.mu.Unlock()
}

// Decrement implements Store.
func (s *LocalStore) Decrement(_ context.Context, scope Scope) (int64, error) {
	sh := s.shard(scope)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, ok := sh.counters[scope]
	if !ok || cur <= 0 {
		delete(sh.counters, scope)
		return 0, ErrUnderflow
	}
	cur--
	if cur == 0 {
		delete(sh.counters, scope)
	} else {
		sh.counters[scope] = cur
	}
	return cur, nil
}

// Count returns the current value of the counter.
func (s *LocalStore) Count(scope Scope) int64 {
	sh := s.shard(scope)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.counters[scope]
}

// Len returns the number of non-zero counters.
func (s *LocalStore) Len() int {
	n := 0
	for i := range s.shards {
		s.shards[i].mu.Lock()
		n += len(s.shards[i].counters)
		s.shards[i].mu.Unlock()
	}
	return n
}
