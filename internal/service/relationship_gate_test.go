package service

import (
	"Parley/internal/api/config"
	"Parley/internal/api/dto"
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/redis"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	redis.Rdb = redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redis.Rdb.Close() })
	return mr
}

func TestLocalGateUsesCacheThenDatabase(t *testing.T) {
	mr := setupRedis(t)
	store := newMemStore()
	gate := NewLocalRelationshipGate(store)
	ctx := context.Background()

	ok, err := gate.AreFriends(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	// 缓存命中
	_, _ = mr.ZAdd("user:following:1", 1, "2")
	_, _ = mr.ZAdd("user:following:2", 1, "1")
	ok, err = gate.AreFriends(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	// 缓存未命中，落库
	store.befriend(3, 4)
	ok, err = gate.AreFriends(ctx, 4, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = gate.AreFriends(ctx, 3, 3)
	assert.False(t, ok)
}

func TestRemoteGate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/relationships/friends", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("a") == "1" && r.URL.Query().Get("b") == "2" {
			_, _ = w.Write([]byte(`{"friends":true}`))
			return
		}
		if r.URL.Query().Get("a") == "500" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"friends":false}`))
	}))
	defer srv.Close()

	gate := NewRemoteRelationshipGate(config.RelationshipConfig{RemoteURL: srv.URL, TimeoutMs: 1000})
	ctx := context.Background()

	ok, err := gate.AreFriends(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.AreFriends(ctx, 1, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = gate.AreFriends(ctx, 500, 1)
	assert.Error(t, err)
}

type slowGate struct{}

func (slowGate) AreFriends(ctx context.Context, _, _ uint64) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(time.Second):
		return true, nil
	}
}

func TestGuardedGateFallsBack(t *testing.T) {
	ctx := context.Background()

	closed := GuardRelationship(staticGate{err: errors.New("boom")}, time.Second, false)
	ok, err := closed.AreFriends(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	open := GuardRelationship(staticGate{err: errors.New("boom")}, time.Second, true)
	ok, err = open.AreFriends(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	timed := GuardRelationship(slowGate{}, 10*time.Millisecond, false)
	start := time.Now()
	ok, err = timed.AreFriends(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	passthrough := GuardRelationship(staticGate{friends: true}, time.Second, false)
	ok, _ = passthrough.AreFriends(ctx, 1, 2)
	assert.True(t, ok)
}

type failingMembership struct{}

func (failingMembership) Members(context.Context, uint64) ([]uint64, error) {
	return nil, errors.New("db down")
}

func (failingMembership) IsMember(context.Context, uint64, uint64) (bool, error) {
	return true, errors.New("db down")
}

func TestGuardedMembership(t *testing.T) {
	g := GuardMembership(failingMembership{}, time.Second)
	ok, err := g.IsMember(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrGateUnavailable)
	assert.False(t, ok)
	code, _ := CodeOf(err)
	assert.Equal(t, ServiceUnavailable, code)

	_, err = g.Members(context.Background(), 1)
	assert.ErrorIs(t, err, ErrGateUnavailable)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestMembershipOutageIsNotForbidden(t *testing.T) {
	store := newMemStore()
	convID := store.addConv(consts.ConversationTypeGroup, 1, 2)
	svc := NewMessageService(store, store, GuardMembership(failingMembership{}, time.Second), nil,
		&recordingDispatcher{}, config.MessageConfig{})

	_, err := svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{ConversationID: convID, Content: "x"})
	assert.ErrorIs(t, err, ErrGateUnavailable)
	assert.NotErrorIs(t, err, ErrForbidden)
	assert.Empty(t, store.messages)
}

func TestRelationService(t *testing.T) {
	store := newMemStore()
	svc := NewRelationService(store)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Follow(ctx, 1, 1), ErrSelfConversation)
	require.NoError(t, svc.Follow(ctx, 1, 2))
	require.NoError(t, svc.Follow(ctx, 1, 3))
	require.NoError(t, svc.Follow(ctx, 2, 1))

	friends, err := svc.ListFriends(ctx, 1, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, friends)

	require.NoError(t, svc.Unfollow(ctx, 2, 1))
	friends, err = svc.ListFriends(ctx, 1, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, friends)
}
