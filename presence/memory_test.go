package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_OnlineOffline(t *testing.T) {
	s := NewMemoryStore(cache.NoExpiration, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.MarkOnline(ctx, "bob"))
	require.NoError(t, s.MarkOnline(ctx, "alice"))

	online, err := s.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, online)

	_, found, err := s.LastSeen(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, found)

	fixed := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	require.NoError(t, s.MarkOffline(ctx, "alice"))

	online, err = s.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, online)

	seen, found, err := s.LastSeen(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, fixed, seen)
}

func TestMemoryStore_LastSeenExpires(t *testing.T) {
	s := NewMemoryStore(30*time.Millisecond, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.MarkOffline(ctx, "carol"))
	_, found, err := s.LastSeen(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(60 * time.Millisecond)

	_, found, err = s.LastSeen(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, found, "expired record should be gone")
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore(time.Minute, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.MarkOnline(ctx, "x"), context.Canceled)
	assert.ErrorIs(t, s.MarkOffline(ctx, "x"), context.Canceled)
	_, _, err := s.LastSeen(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Online(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore(time.Minute, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(20)
	for range 20 {
		go func() {
			defer wg.Done()
			for range 100 {
				_ = s.MarkOnline(ctx, "dave")
				_ = s.MarkOffline(ctx, "dave")
				_, _, _ = s.LastSeen(ctx, "dave")
			}
		}()
	}
	wg.Wait()

	online, err := s.Online(ctx)
	require.NoError(t, err)
	assert.Empty(t, online)
	assert.NoError(t, s.Close())
}

func TestMemoryStore_ImplementsStore(t *testing.T) {
	var _ Store = NewMemoryStore(time.Minute, time.Minute)
}
