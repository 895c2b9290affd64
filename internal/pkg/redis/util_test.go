package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	Rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = Rdb.Close() })
	return mr
}

func TestGetValueMissingKey(t *testing.T) {
	setup(t)
	v, err := GetValue(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestLockIsExclusive(t *testing.T) {
	setup(t)
	ctx := context.Background()

	ok, err := TryLock(ctx, "lock:a", "owner-1", time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = TryLock(ctx, "lock:a", "owner-2", time.Minute, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	UnLock(ctx, "lock:a", "owner-2")
	v, _ := GetValue(ctx, "lock:a")
	assert.Equal(t, "owner-1", v)

	UnLock(ctx, "lock:a", "owner-1")
	v, _ = GetValue(ctx, "lock:a")
	assert.Equal(t, "", v)
}

func TestConnectionSetLifecycle(t *testing.T) {
	mr := setup(t)
	ctx := context.Background()

	require.NoError(t, ZAddWithExpiration(ctx, "conn:1", "a", 100, time.Minute))
	require.NoError(t, ZAddWithExpiration(ctx, "conn:1", "b", 200, time.Minute))
	require.NoError(t, ZAddWithExpiration(ctx, "conn:1", "stale", 10, time.Minute))
	assert.True(t, mr.TTL("conn:1") > 0)

	n, err := ZRemAndCount(ctx, "conn:1", "a", 50)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = ZRemAndCount(ctx, "conn:1", "b", 50)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
	assert.False(t, mr.Exists("conn:1"))
}

func TestZIsMember(t *testing.T) {
	setup(t)
	ctx := context.Background()
	require.NoError(t, Rdb.ZAdd(ctx, "s", redis.Z{Score: 1, Member: "7"}).Err())

	ok, err := ZIsMember(ctx, "s", "7")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = ZIsMember(ctx, "s", "8")
	require.NoError(t, err)
	assert.False(t, ok)
}
