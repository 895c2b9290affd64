package bus

import "context"

// Message 从总线收到的一条推送
type Message struct {
	Topic   string
	Payload []byte
}

// Subscription 一个长连接持有一个订阅，可以在连接存续期间追加主题
type Subscription interface {
	C() <-chan Message
	Add(ctx context.Context, topics ...string) error
	Close() error
}

// Bus 推送总线，主题为 conversation/{id}、user/{id}/xxx 形式的逻辑名
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
	Close() error
}
