package service

import (
	"Parley/internal/api/config"
	"Parley/internal/api/dto"
	"Parley/internal/pkg/consts"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceLifecycle(t *testing.T) {
	mr := setupRedis(t)
	disp := &recordingDispatcher{}
	svc := NewPresenceService(config.PresenceConfig{Lease: 300, OfflineTTL: 3600}, disp)
	ctx := context.Background()

	st, err := svc.Status(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, PresenceUnknown, st)

	require.NoError(t, svc.SetOnline(ctx, 7))
	online, err := svc.IsOnline(ctx, 7)
	require.NoError(t, err)
	assert.True(t, online)
	assert.Equal(t, 300*time.Second, mr.TTL("im:presence:7"))

	require.NoError(t, svc.SetOffline(ctx, 7))
	st, _ = svc.Status(ctx, 7)
	assert.Equal(t, PresenceOffline, st)
	online, _ = svc.IsOnline(ctx, 7)
	assert.False(t, online)

	events := disp.on(consts.UserTopic(7, consts.UserTopicStatus))
	assert.Equal(t, []string{consts.EventPresenceChanged, consts.EventPresenceChanged}, events)
	assert.Equal(t, "OFFLINE", disp.last().Data.(*dto.PresenceDTO).Status)
}

func TestPresenceLeaseExpires(t *testing.T) {
	mr := setupRedis(t)
	svc := NewPresenceService(config.PresenceConfig{Lease: 60}, &recordingDispatcher{})
	ctx := context.Background()

	require.NoError(t, svc.SetOnline(ctx, 1))
	mr.FastForward(61 * time.Second)

	online, err := svc.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online)
	st, _ := svc.Status(ctx, 1)
	assert.Equal(t, PresenceUnknown, st)
}

func TestPresenceMultipleConnections(t *testing.T) {
	setupRedis(t)
	disp := &recordingDispatcher{}
	svc := NewPresenceService(config.PresenceConfig{Lease: 60}, disp)
	ctx := context.Background()

	require.NoError(t, svc.Attach(ctx, 1, "phone"))
	require.NoError(t, svc.Attach(ctx, 1, "laptop"))
	require.NoError(t, svc.Detach(ctx, 1, "phone"))

	online, _ := svc.IsOnline(ctx, 1)
	assert.True(t, online)

	require.NoError(t, svc.Refresh(ctx, 1, "laptop"))
	require.NoError(t, svc.Detach(ctx, 1, "laptop"))
	online, _ = svc.IsOnline(ctx, 1)
	assert.False(t, online)
}

func TestPresenceRefreshReseedsLapsedConnections(t *testing.T) {
	mr := setupRedis(t)
	svc := NewPresenceService(config.PresenceConfig{Lease: 60}, &recordingDispatcher{})
	ctx := context.Background()

	require.NoError(t, svc.Attach(ctx, 1, "phone"))
	require.NoError(t, svc.Attach(ctx, 1, "laptop"))
	mr.FastForward(121 * time.Second)
	require.False(t, mr.Exists("im:presence:conn:1"))

	// 笔记本仍在线并续租，手机断开不能把用户置为离线
	require.NoError(t, svc.Refresh(ctx, 1, "laptop"))
	require.NoError(t, svc.Detach(ctx, 1, "phone"))

	online, err := svc.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.True(t, online)
}

func TestPresenceDetachIgnoresStaleConnections(t *testing.T) {
	mr := setupRedis(t)
	svc := NewPresenceService(config.PresenceConfig{Lease: 60}, &recordingDispatcher{})
	ctx := context.Background()

	require.NoError(t, svc.Attach(ctx, 1, "live"))
	// 崩溃进程残留的连接，最近心跳早于两个租约
	old := float64(time.Now().Add(-10 * time.Minute).UnixMilli())
	_, err := mr.ZAdd("im:presence:conn:1", old, "crashed")
	require.NoError(t, err)

	require.NoError(t, svc.Detach(ctx, 1, "live"))
	st, _ := svc.Status(ctx, 1)
	assert.Equal(t, PresenceOffline, st)
}
