package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestJSONStore_RoundTripAndMiss(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewJSONStore(rdb, "norm:", time.Hour)
	ctx := context.Background()

	type entry struct {
		Code       string  `json:"code"`
		Confidence float64 `json:"confidence"`
	}

	var got entry
	found, err := store.Load(ctx, "k1", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Store(ctx, "k1", entry{Code: "SBS-LAB-001", Confidence: 0.9}))
	assert.True(t, mr.Exists("norm:k1"))
	assert.Equal(t, time.Hour, mr.TTL("norm:k1"))

	found, err = store.Load(ctx, "k1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, entry{Code: "SBS-LAB-001", Confidence: 0.9}, got)
}

func TestLocker_ExclusiveAndRelease(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewLocker(rdb, "lock:")
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "tx-1", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "tx-1", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	release()
	assert.False(t, mr.Exists("lock:tx-1"))

	release2, err := locker.Acquire(ctx, "tx-1", time.Minute)
	require.NoError(t, err)
	release2()
}

func TestLocker_ReleaseDoesNotStealForeignLock(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewLocker(rdb, "lock:")

	release, err := locker.Acquire(context.Background(), "tx-2", time.Second)
	require.NoError(t, err)

	// Lock expires and someone else takes it.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("lock:tx-2", "other-owner"))

	release()
	v, err := mr.Get("lock:tx-2")
	require.NoError(t, err)
	assert.Equal(t, "other-owner", v)
}
