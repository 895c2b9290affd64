package handler

import (
	"Parley/internal/api/config"
	"Parley/internal/api/dto"
	"Parley/internal/pkg/bus"
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/redis"
	"Parley/internal/pkg/security"
	"Parley/internal/service"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopDispatcher struct{}

func (nopDispatcher) Publish(context.Context, string, string, any) {}
func (nopDispatcher) Close()                                      {}

type fakeConversationService struct {
	service.ConversationService
	mu     sync.Mutex
	typing []dto.TypingDTO
}

func (f *fakeConversationService) ListConversations(context.Context, uint64) ([]*dto.ConversationDTO, error) {
	return []*dto.ConversationDTO{
		{ID: 100, Type: consts.ConversationTypePrivate, PeerID: 8},
	}, nil
}

func (f *fakeConversationService) Typing(_ context.Context, convID, userID uint64, typing bool) error {
	if convID != 100 {
		return service.ErrNotAMember
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, dto.TypingDTO{ConversationID: convID, UserID: userID, Typing: typing})
	return nil
}

func (f *fakeConversationService) typed() []dto.TypingDTO {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dto.TypingDTO(nil), f.typing...)
}

type wsFixture struct {
	mr    *miniredis.Miniredis
	bus   bus.Bus
	conv  *fakeConversationService
	srv   *httptest.Server
	token string
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	prevRdb, prevCfg := redis.Rdb, config.Cfg
	redis.Rdb = redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	config.Cfg = &config.Config{JWT: config.JWTConfig{Secret: "ws-secret", Issuer: "Parley"}}
	t.Cleanup(func() {
		_ = redis.Rdb.Close()
		redis.Rdb, config.Cfg = prevRdb, prevCfg
	})

	b := bus.NewRedisBus(redis.Rdb)
	conv := &fakeConversationService{}
	presence := service.NewPresenceService(config.PresenceConfig{Lease: 60, OfflineTTL: 60}, nopDispatcher{})
	h := NewWsHandler(b, presence, conv, &fakeCallService{})

	r := gin.New()
	r.GET("/ws", h.Connect)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	token, err := security.GenerateToken(7, nil)
	require.NoError(t, err)

	return &wsFixture{mr: mr, bus: b, conv: conv, srv: srv, token: token}
}

func (f *wsFixture) dial(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func (f *wsFixture) presence() string {
	v, _ := f.mr.Get(consts.PresenceKey + "7")
	return v
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	return raw
}

func TestWSRejectsMissingToken(t *testing.T) {
	f := newWSFixture(t)

	_, resp, err := f.dial(t, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	var body dto.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, service.Unauthorized, body.Code)
}

func TestWSRejectsRevokedToken(t *testing.T) {
	f := newWSFixture(t)
	sig, err := security.ExtractSignature(f.token)
	require.NoError(t, err)
	require.NoError(t, f.mr.Set(consts.TokenBlacklistKey+sig, "1"))

	_, _, err = f.dial(t, f.token)
	assert.Error(t, err)
}

func TestWSSessionLifecycle(t *testing.T) {
	f := newWSFixture(t)

	conn, _, err := f.dial(t, f.token)
	require.NoError(t, err)

	// 在线标记在订阅完成之后写入
	require.Eventually(t, func() bool { return f.presence() == "ONLINE" }, 2*time.Second, 10*time.Millisecond)

	// 会话推送原样转发
	payload := []byte(`{"topic":"conversation/100","event":"MessageSent","data":{}}`)
	require.NoError(t, f.bus.Publish(context.Background(), consts.ConversationTopic(100), payload))
	assert.JSONEq(t, string(payload), string(readFrame(t, conn)))

	// 单聊对方的在线状态
	peer := []byte(`{"topic":"user/8/status","event":"PresenceChanged","data":{"user_id":8,"status":"ONLINE"}}`)
	require.NoError(t, f.bus.Publish(context.Background(), consts.UserTopic(8, consts.UserTopicStatus), peer))
	assert.JSONEq(t, string(peer), string(readFrame(t, conn)))

	// 上行 typing
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": FrameTyping,
		"data": map[string]any{"conversation_id": 100, "typing": true},
	}))
	require.Eventually(t, func() bool { return len(f.conv.typed()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(7), f.conv.typed()[0].UserID)

	// 未知帧回复错误
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "bogus"}))
	var wsErr dto.WSError
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &wsErr))
	assert.Equal(t, FrameError, wsErr.Type)
	assert.Equal(t, service.BadRequest, wsErr.Code)
	assert.Equal(t, "bogus", wsErr.Ref)

	// 非成员会话的 typing 返回 403
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": FrameTyping,
		"data": map[string]any{"conversation_id": 999, "typing": true},
	}))
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &wsErr))
	assert.Equal(t, service.Forbidden, wsErr.Code)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.presence() == "OFFLINE" }, 2*time.Second, 10*time.Millisecond)
}

func TestWSFollowsNewConversations(t *testing.T) {
	f := newWSFixture(t)

	conn, _, err := f.dial(t, f.token)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.presence() == "ONLINE" }, 2*time.Second, 10*time.Millisecond)

	data, err := json.Marshal(&dto.ConversationDTO{ID: 200, Type: consts.ConversationTypeGroup})
	require.NoError(t, err)
	created, err := json.Marshal(&dto.Envelope{
		Topic: consts.UserTopic(7, consts.UserTopicConversations),
		Event: consts.EventConversationCreated,
		Data:  data,
		Ts:    time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, f.bus.Publish(context.Background(), consts.UserTopic(7, consts.UserTopicConversations), created))
	readFrame(t, conn)

	// 追加订阅是异步的
	require.Eventually(t, func() bool {
		return f.mr.PubSubNumSub("im:conversation/200")["im:conversation/200"] > 0
	}, 2*time.Second, 10*time.Millisecond)
	msg := []byte(`{"topic":"conversation/200","event":"MessageSent","data":{}}`)
	require.NoError(t, f.bus.Publish(context.Background(), consts.ConversationTopic(200), msg))

	for {
		raw := readFrame(t, conn)
		if strings.Contains(string(raw), "conversation/200") {
			break
		}
	}
}
