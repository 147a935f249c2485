package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, KeyAccessToken)
	require.NoError(t, err)
	assert.False(t, ok, "fresh store should be empty")

	require.NoError(t, store.Set(ctx, KeyAccessToken, "access-1"))
	require.NoError(t, store.Set(ctx, KeyRefreshToken, "refresh-1"))
	require.NoError(t, store.Set(ctx, KeyUser, `{"id":"u1"}`))

	v, ok, err := store.Get(ctx, KeyAccessToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "access-1", v)

	require.NoError(t, store.Set(ctx, KeyAccessToken, "access-2"))
	v, _, err = store.Get(ctx, KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "access-2", v)

	require.NoError(t, store.Remove(ctx, KeyUser))
	_, ok, err = store.Get(ctx, KeyUser)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, store.Remove(ctx, KeyUser), "removing an absent key is not an error")

	require.NoError(t, store.Clear(ctx))
	for _, key := range Keys {
		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, "key %s should be cleared", key)
	}
	require.NoError(t, store.Clear(ctx), "clearing twice is harmless")
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Set(ctx, KeyAccessToken, "tok")
			_, _, _ = store.Get(ctx, KeyAccessToken)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.Len())
}
