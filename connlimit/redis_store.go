/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package connlimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] - counter key, ARGV[1] - limit, ARGV[2] - key TTL in milliseconds.
// Returns {1, new value} on success and {0, current value} when the limit is reached.
var incrementIfBelowLimitScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur >= tonumber(ARGV[1]) then
	return {0, cur}
end
cur = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return {1, cur}
`)

// KEYS[1] - counter key. Returns the new value, or -1 if the counter was already zero.
var decrementScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur <= 0 then
	redis.call('DEL', KEYS[1])
	return -1
end
cur = redis.call('DECR', KEYS[1])
if cur <= 0 then
	redis.call('DEL', KEYS[1])
end
return cur
`)

// RedisStore is a DistributedStore backed by Redis.
// Every counter key carries a TTL, so counts leaked by a crashed instance expire eventually.
// Instances holding connections refresh the TTL via Touch.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	keyTTL    time.Duration
}

var _ DistributedStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore connected to the given URL (redis://[user:password@]host:port/db).
// The connection itself is established lazily.
func NewRedisStore(url string, keyPrefix string, keyTTL time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(opts), keyPrefix, keyTTL), nil
}

// NewRedisStoreWithClient creates a RedisStore that uses an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string, keyTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix, keyTTL: keyTTL}
}

// IncrementIfBelowLimit implements Store.
func (s *RedisStore) IncrementIfBelowLimit(ctx context.Context, scope Scope, limit int64) (int64, error) {
	res, err := incrementIfBelowLimitScript.Run(ctx, s.client,
		[]string{scope.Key(s.keyPrefix)}, limit, s.keyTTL.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", scope, err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("increment %s: unexpected script result %v", scope, res)
	}
	if res[0] == 0 {
		return res[1], ErrAtLimit
	}
	return res[1], nil
}

// Decrement implements Store.
func (s *RedisStore) Decrement(ctx context.Context, scope Scope) (int64, error) {
	res, err := decrementScript.Run(ctx, s.client, []string{scope.Key(s.keyPrefix)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("decrement %s: %w", scope, err)
	}
	if res < 0 {
		return 0, ErrUnderflow
	}
	return res, nil
}

// Ping implements DistributedStore.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Touch implements DistributedStore.
func (s *RedisStore) Touch(ctx context.Context, scopes []Scope) error {
	if len(scopes) == 0 {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, scope := range scopes {
			pipe.PExpire(ctx, scope.Key(s.keyPrefix), s.keyTTL)
		}
		return nil
	})
	return err
}

// Add implements DistributedStore. The increments are applied in a single MULTI/EXEC transaction.
func (s *RedisStore) Add(ctx context.Context, counts map[Scope]int64) error {
	if len(counts) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for scope, n := range counts {
			key := scope.Key(s.keyPrefix)
			pipe.IncrBy(ctx, key, n)
			pipe.PExpire(ctx, key, s.keyTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("add %d counters: %w", len(counts), err)
	}
	return nil
}

// Close implements DistributedStore.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
