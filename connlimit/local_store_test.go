/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package connlimit

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScope_Key(t *testing.T) {
	require.Equal(t, "wsrelay:conn:global", GlobalScope().Key("wsrelay:conn:"))
	require.Equal(t, "wsrelay:conn:addr:10.0.0.1", AddressScope("10.0.0.1").Key("wsrelay:conn:"))
	require.Equal(t, "per_address", AddressScope("::1").Kind.String())
	require.Equal(t, "global", GlobalScope().Kind.String())
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore()
	scope := AddressScope("10.0.0.1")

	for i := int64(1); i <= 3; i++ {
		n, err := store.IncrementIfBelowLimit(ctx, scope, 3)
		require.NoError(t, err)
		require.Equal(t, i, n)
	}
	n, err := store.IncrementIfBelowLimit(ctx, scope, 3)
	require.ErrorIs(t, err, ErrAtLimit)
	require.EqualValues(t, 3, n)

	_, err = store.IncrementIfBelowLimit(ctx, GlobalScope(), 0)
	require.ErrorIs(t, err, ErrAtLimit, "zero limit closes the scope")

	for i := int64(2); i >= 0; i-- {
		n, err = store.Decrement(ctx, scope)
		require.NoError(t, err)
		require.Equal(t, i, n)
	}
	require.Equal(t, 0, store.Len(), "counter must be removed at zero")

	n, err = store.Decrement(ctx, scope)
	require.ErrorIs(t, err, ErrUnderflow)
	require.EqualValues(t, 0, n)
	require.EqualValues(t, 0, store.Count(scope))
	require.Equal(t, 0, store.Len())
}

func TestLocalStore_ConcurrentIncrement(t *testing.T) {
	const limit = 10
	const workers = 100

	ctx := context.Background()
	store := NewLocalStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.IncrementIfBelowLimit(ctx, GlobalScope(), limit); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, limit, granted)
	require.EqualValues(t, limit, store.Count(GlobalScope()))
}
