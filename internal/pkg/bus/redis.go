package bus

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "im:"

// RedisBus 基于 redis pub/sub，频道名为 im:<topic>
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.rdb.Publish(ctx, redisChannelPrefix+topic, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, channels(topics)...)
	// 等待订阅确认，连接失败时尽早返回
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	s := &redisSubscription{ps: ps, out: make(chan Message, 64), done: make(chan struct{})}
	go s.forward()
	return s, nil
}

// Close 客户端由 pkg/redis 统一管理
func (b *RedisBus) Close() error { return nil }

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan Message
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) forward() {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		select {
		case s.out <- Message{
			Topic:   strings.TrimPrefix(msg.Channel, redisChannelPrefix),
			Payload: []byte(msg.Payload),
		}:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) C() <-chan Message { return s.out }

func (s *redisSubscription) Add(ctx context.Context, topics ...string) error {
	return s.ps.Subscribe(ctx, channels(topics)...)
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func channels(topics []string) []string {
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = redisChannelPrefix + t
	}
	return out
}
