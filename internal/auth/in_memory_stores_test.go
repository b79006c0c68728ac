package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestInMemoryPendingStore_TakeIsSingleUse(t *testing.T) {
	store := NewInMemoryPendingStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "state-1", "verifier-1"))

	entry, err := store.TakeIfPresent(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, "state-1", entry.State)
	assert.Equal(t, "verifier-1", entry.CodeVerifier)
	assert.False(t, entry.CreatedAt.IsZero())

	_, err = store.TakeIfPresent(ctx, "state-1")
	assert.ErrorIs(t, err, ErrPendingNotFound)
}

func TestInMemoryPendingStore_UnknownState(t *testing.T) {
	store := NewInMemoryPendingStore(time.Minute)

	_, err := store.TakeIfPresent(context.Background(), "nonexistent-123")
	assert.ErrorIs(t, err, ErrPendingNotFound)
}

func TestInMemoryPendingStore_PutOverwrites(t *testing.T) {
	store := NewInMemoryPendingStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "state", "first"))
	require.NoError(t, store.Put(ctx, "state", "second"))

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entry, err := store.TakeIfPresent(ctx, "state")
	require.NoError(t, err)
	assert.Equal(t, "second", entry.CodeVerifier)
}

func TestInMemoryPendingStore_Expiry(t *testing.T) {
	clock := newFakeClock()
	store := NewInMemoryPendingStore(10 * time.Minute)
	store.now = clock.Now
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "old", "v-old"))
	clock.Advance(11 * time.Minute)
	require.NoError(t, store.Put(ctx, "fresh", "v-fresh"))

	t.Run("expired entry is rejected and removed", func(t *testing.T) {
		_, err := store.TakeIfPresent(ctx, "old")
		assert.ErrorIs(t, err, ErrPendingExpired)

		_, err = store.TakeIfPresent(ctx, "old")
		assert.ErrorIs(t, err, ErrPendingNotFound)
	})

	t.Run("fresh entry survives", func(t *testing.T) {
		entry, err := store.TakeIfPresent(ctx, "fresh")
		require.NoError(t, err)
		assert.Equal(t, "v-fresh", entry.CodeVerifier)
	})
}

func TestInMemoryPendingStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	store := NewInMemoryPendingStore(time.Minute)
	store.now = clock.Now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Put(ctx, fmt.Sprintf("old-%d", i), "v"))
	}
	clock.Advance(2 * time.Minute)
	require.NoError(t, store.Put(ctx, "fresh", "v"))

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, err = store.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestInMemoryPendingStore_ConcurrentTake(t *testing.T) {
	store := NewInMemoryPendingStore(time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "contended", "verifier"))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.TakeIfPresent(ctx, "contended"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestInMemoryTokenHolder(t *testing.T) {
	holder := NewInMemoryTokenHolder()
	ctx := context.Background()

	t.Run("empty holder", func(t *testing.T) {
		_, err := holder.Current(ctx)
		assert.ErrorIs(t, err, ErrNoToken)
	})

	t.Run("store and read back a copy", func(t *testing.T) {
		token := &TokenSet{AccessToken: "abc", TokenType: "Bearer", ExpiresIn: 3600, Scope: "openid"}
		require.NoError(t, holder.Store(ctx, token))

		got, err := holder.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, *token, *got)

		got.AccessToken = "mutated"
		again, err := holder.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, "abc", again.AccessToken)
	})

	t.Run("store replaces", func(t *testing.T) {
		require.NoError(t, holder.Store(ctx, &TokenSet{AccessToken: "second"}))
		got, err := holder.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, "second", got.AccessToken)
	})

	t.Run("nil token is rejected", func(t *testing.T) {
		assert.Error(t, holder.Store(ctx, nil))
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		require.NoError(t, holder.Clear(ctx))
		_, err := holder.Current(ctx)
		assert.ErrorIs(t, err, ErrNoToken)

		require.NoError(t, holder.Clear(ctx))
		_, err = holder.Current(ctx)
		assert.ErrorIs(t, err, ErrNoToken)
	})
}

func TestTokenSet_Expired(t *testing.T) {
	now := time.Now()

	assert.False(t, (&TokenSet{}).Expired(now), "no expiry means not expired")
	assert.False(t, (&TokenSet{Expiry: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&TokenSet{Expiry: now.Add(-time.Minute)}).Expired(now))
}
