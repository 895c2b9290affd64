package kafka

import (
	"Parley/internal/pkg/es"
	"Parley/internal/pkg/redis"
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessageIndex struct {
	indexed  map[uint64]*es.MessageES
	versions map[uint64]int64
	deleted  []uint64
	fail     error
}

func newFakeMessageIndex() *fakeMessageIndex {
	return &fakeMessageIndex{indexed: map[uint64]*es.MessageES{}, versions: map[uint64]int64{}}
}

func (f *fakeMessageIndex) SearchMessages(context.Context, uint64, string, int, int) ([]*es.MessageES, error) {
	return nil, nil
}

func (f *fakeMessageIndex) IndexMessage(_ context.Context, msg *es.MessageES, version int64) error {
	if f.fail != nil {
		return f.fail
	}
	f.indexed[msg.ID] = msg
	f.versions[msg.ID] = version
	return nil
}

func (f *fakeMessageIndex) DeleteMessage(_ context.Context, id uint64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func TestToCanalMessageFiltersTable(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: []byte(`{"table":"messages","type":"INSERT","data":[{"id":"1"}]}`)}

	canalMsg, err := ToCanalMessage(msg, "messages")
	require.NoError(t, err)
	assert.Equal(t, INSERT, canalMsg.Type)

	_, err = ToCanalMessage(msg, "user_follows")
	assert.Error(t, err)

	_, err = ToCanalMessage(&sarama.ConsumerMessage{Value: []byte(`{"table":"messages","data":[]}`)}, "messages")
	assert.Error(t, err)
}

func TestCanalValueHelpers(t *testing.T) {
	assert.Equal(t, uint64(42), StrToUint64("42"))
	assert.Equal(t, uint64(0), StrToUint64(nil))
	assert.Equal(t, uint64(0), StrToUint64("x"))
	assert.True(t, StrToBool("1"))
	assert.False(t, StrToBool("0"))

	ts := StrToTime("2026-01-02 03:04:05.123")
	assert.Equal(t, 2026, ts.Year())
	assert.Equal(t, 5, ts.Second())
	assert.True(t, StrToTime("garbage").IsZero())
}

func TestMessagesHandlerIndexesAndRemoves(t *testing.T) {
	idx := newFakeMessageIndex()
	h := NewMessagesHandler(idx)
	ctx := context.Background()

	require.NoError(t, h.apply(ctx, &CanalMessage{
		Table: "messages",
		Type:  INSERT,
		Data: []map[string]interface{}{{
			"id": "10", "conversation_id": "3", "sender_id": "1", "seq": "7",
			"type": "TEXT", "content": "hello", "deleted": "0", "version": "1",
			"created_at": "2026-01-02 03:04:05",
		}},
	}))
	require.Contains(t, idx.indexed, uint64(10))
	assert.Equal(t, "hello", idx.indexed[10].Content)
	assert.Equal(t, uint64(7), idx.indexed[10].Seq)
	assert.Equal(t, int64(1), idx.versions[10])

	// 软删除不进入索引
	require.NoError(t, h.apply(ctx, &CanalMessage{
		Table: "messages",
		Type:  UPDATE,
		Data:  []map[string]interface{}{{"id": "10", "deleted": "1", "version": "2"}},
	}))
	assert.Equal(t, []uint64{10}, idx.deleted)

	require.NoError(t, h.apply(ctx, &CanalMessage{
		Table: "messages",
		Type:  DELETE,
		Data:  []map[string]interface{}{{"id": "11"}},
	}))
	assert.Equal(t, []uint64{10, 11}, idx.deleted)
}

func TestMessagesHandlerSurfacesIndexErrors(t *testing.T) {
	idx := newFakeMessageIndex()
	idx.fail = errors.New("es down")
	h := NewMessagesHandler(idx)

	err := h.apply(context.Background(), &CanalMessage{
		Table: "messages",
		Type:  INSERT,
		Data:  []map[string]interface{}{{"id": "1", "version": "1"}},
	})
	assert.Error(t, err)
}

func TestUserFollowsHandlerMaintainsSets(t *testing.T) {
	mr := miniredis.RunT(t)
	prev := redis.Rdb
	redis.Rdb = redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = redis.Rdb.Close()
		redis.Rdb = prev
	})

	h := NewUserFollowsHandler()
	ctx := context.Background()

	require.NoError(t, h.apply(ctx, &CanalMessage{
		Table: "user_follows",
		Type:  INSERT,
		Data: []map[string]interface{}{
			{"follower_id": "1", "following_id": "2", "created_at": "2026-01-02 03:04:05"},
		},
	}))

	ok, err := redis.ZIsMember(ctx, "user:following:1", "2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = redis.ZIsMember(ctx, "user:follower:2", "1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, h.apply(ctx, &CanalMessage{
		Table: "user_follows",
		Type:  DELETE,
		Data:  []map[string]interface{}{{"follower_id": "1", "following_id": "2"}},
	}))
	ok, err = redis.ZIsMember(ctx, "user:following:1", "2")
	require.NoError(t, err)
	assert.False(t, ok)
}
