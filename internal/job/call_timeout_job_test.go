package job

import (
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/redis"
	"Parley/internal/service"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

type sweepRecorder struct {
	service.CallService
	calls atomic.Int32
	at    time.Time
}

func (s *sweepRecorder) ExpireRinging(_ context.Context, now time.Time) (int, error) {
	s.calls.Add(1)
	s.at = now
	return 2, nil
}

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	prev := redis.Rdb
	redis.Rdb = redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = redis.Rdb.Close()
		redis.Rdb = prev
	})
	return mr
}

func TestCallTimeoutJobSweepsAndReleasesLock(t *testing.T) {
	mr := setupRedis(t)
	rec := &sweepRecorder{}
	j := NewCallTimeoutJob(rec)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	j.Run()

	assert.Equal(t, int32(1), rec.calls.Load())
	assert.Equal(t, fixed, rec.at)
	assert.False(t, mr.Exists(consts.CallTimeoutLock))
}

func TestCallTimeoutJobSkipsWhenLockHeld(t *testing.T) {
	mr := setupRedis(t)
	assert.NoError(t, mr.Set(consts.CallTimeoutLock, "other-instance"))
	rec := &sweepRecorder{}

	NewCallTimeoutJob(rec).Run()

	assert.Equal(t, int32(0), rec.calls.Load())
	v, _ := mr.Get(consts.CallTimeoutLock)
	assert.Equal(t, "other-instance", v)
}
