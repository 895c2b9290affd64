package service

import (
	"Parley/internal/api/config"
	"Parley/internal/api/dto"
	"Parley/internal/pkg/bus"
	"Parley/internal/pkg/logger"
	"Parley/internal/pkg/workerpool"
	"context"
	log "log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Dispatcher 所有需要推送到客户端的状态变更都经由这里发布。
// 至多一次、尽力而为：不阻塞调用方，也不因推送失败让业务操作失败。
type Dispatcher interface {
	Publish(ctx context.Context, topic string, event string, data any)
	Close()
}

type dispatcherImpl struct {
	bus      bus.Bus
	pool     *workerpool.KeyedPool
	presence PresenceReader
	timeout  time.Duration
}

// NewDispatcher 按主题分片，同一主题的事件顺序发布
func NewDispatcher(b bus.Bus, presence PresenceReader, cfg config.FanoutConfig) Dispatcher {
	timeout := cfg.PublishTimeout()
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &dispatcherImpl{
		bus:      b,
		pool:     workerpool.New(cfg.Workers, cfg.QueueSize),
		presence: presence,
		timeout:  timeout,
	}
}

func (s *dispatcherImpl) Publish(ctx context.Context, topic string, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.ErrorContext(ctx, "fanout marshal failed", "topic", topic, "event", event, "err", err)
		return
	}
	payload, err := json.Marshal(&dto.Envelope{Topic: topic, Event: event, Data: raw, Ts: time.Now()})
	if err != nil {
		log.ErrorContext(ctx, "fanout marshal failed", "topic", topic, "event", event, "err", err)
		return
	}

	// 异步投递时请求已结束，*gin.Context 可能已被复用，只拷贝 trace_id
	bg := logger.WithTraceID(context.Background(), logger.TraceID(ctx))
	ok := s.pool.TrySubmit(topic, func() {
		s.deliver(bg, topic, event, payload)
	})
	if !ok {
		log.WarnContext(ctx, "fanout queue full, event dropped", "topic", topic, "event", event)
	}
}

func (s *dispatcherImpl) deliver(ctx context.Context, topic, event string, payload []byte) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if uid, ok := recipientOf(topic); ok && s.presence != nil {
		status, err := s.presence.Status(ctx, uid)
		if err == nil && status != PresenceOnline {
			log.DebugContext(ctx, "recipient not online, publishing anyway",
				"topic", topic, "event", event, "presence", string(status))
		}
	}

	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		log.WarnContext(ctx, "fanout publish failed", "topic", topic, "event", event, "err", err)
	}
}

func (s *dispatcherImpl) Close() {
	s.pool.Shutdown()
}

// recipientOf user/{id}/xxx 主题的接收者
func recipientOf(topic string) (uint64, bool) {
	rest, ok := strings.CutPrefix(topic, "user/")
	if !ok {
		return 0, false
	}
	idStr, _, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
