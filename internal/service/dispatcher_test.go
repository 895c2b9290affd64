package service

import (
	"Parley/internal/api/config"
	"Parley/internal/api/dto"
	"Parley/internal/pkg/bus"
	"Parley/internal/pkg/logger"
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBus struct {
	mu        sync.Mutex
	published []bus.Message
	fail      bool
}

func (b *memBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("bus down")
	}
	b.published = append(b.published, bus.Message{Topic: topic, Payload: payload})
	return nil
}

func (b *memBus) Subscribe(context.Context, ...string) (bus.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *memBus) Close() error { return nil }

type fixedPresence PresenceStatus

func (p fixedPresence) Status(context.Context, uint64) (PresenceStatus, error) {
	return PresenceStatus(p), nil
}

func TestDispatcherPreservesPerTopicOrder(t *testing.T) {
	b := &memBus{}
	d := NewDispatcher(b, fixedPresence(PresenceOffline), config.FanoutConfig{Workers: 4, QueueSize: 256, PublishTimeoutMs: 500})

	for i := 0; i < 100; i++ {
		d.Publish(context.Background(), "conversation/1", "Typing", &dto.TypingDTO{ConversationID: 1, UserID: uint64(i)})
	}
	d.Publish(context.Background(), "user/2/status", "PresenceChanged", &dto.PresenceDTO{UserID: 2, Status: "ONLINE"})
	d.Close()

	var seq []uint64
	var presence int
	for _, m := range b.published {
		var env dto.Envelope
		require.NoError(t, json.Unmarshal(m.Payload, &env))
		assert.Equal(t, m.Topic, env.Topic)
		switch env.Topic {
		case "conversation/1":
			var typing dto.TypingDTO
			require.NoError(t, json.Unmarshal(env.Data, &typing))
			seq = append(seq, typing.UserID)
		case "user/2/status":
			presence++
		}
	}
	require.Len(t, seq, 100)
	for i, v := range seq {
		assert.Equal(t, uint64(i), v)
	}
	assert.Equal(t, 1, presence)
}

func TestDispatcherSwallowsBusErrors(t *testing.T) {
	b := &memBus{fail: true}
	d := NewDispatcher(b, nil, config.FanoutConfig{Workers: 1, QueueSize: 4})
	assert.NotPanics(t, func() {
		d.Publish(context.Background(), "conversation/1", "MessageSent", map[string]int{"id": 1})
		d.Close()
	})
}

// heldBus 放行前阻塞发布，并记录投递时看到的 trace_id
type heldBus struct {
	memBus
	release chan struct{}
	traces  []string
}

func (b *heldBus) Publish(ctx context.Context, topic string, payload []byte) error {
	<-b.release
	b.mu.Lock()
	b.traces = append(b.traces, logger.TraceID(ctx))
	b.mu.Unlock()
	return b.memBus.Publish(ctx, topic, payload)
}

func TestDispatcherDetachesFromRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	b := &heldBus{release: make(chan struct{})}
	d := NewDispatcher(b, nil, config.FanoutConfig{Workers: 1, QueueSize: 4, PublishTimeoutMs: 500})

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(logger.TraceIDKey, "req-A")
	d.Publish(c, "conversation/1", "MessageSent", map[string]int{"id": 1})

	// 处理函数返回后 gin 会把 Context 交给下一个请求
	c.Set(logger.TraceIDKey, "req-B")
	close(b.release)
	d.Close()

	assert.Equal(t, []string{"req-A"}, b.traces)
	assert.Len(t, b.published, 1)
}

func TestRecipientOf(t *testing.T) {
	id, ok := recipientOf("user/42/incoming-call")
	assert.True(t, ok)
	assert.Equal(t, uint64(42), id)

	_, ok = recipientOf("conversation/42")
	assert.False(t, ok)
	_, ok = recipientOf("user/abc/status")
	assert.False(t, ok)
}
