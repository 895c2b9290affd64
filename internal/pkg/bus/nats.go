package bus

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const natsSubjectPrefix = "im."

// NatsBus 基于 NATS core，subject 为 im.<topic>，/ 替换为 .
type NatsBus struct {
	conn *nats.Conn
}

func NewNatsBus(url string) (*NatsBus, error) {
	conn, err := nats.Connect(url,
		nats.Name("parley-fanout"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NatsBus{conn: conn}, nil
}

func (b *NatsBus) Publish(_ context.Context, topic string, payload []byte) error {
	return b.conn.Publish(TopicToSubject(topic), payload)
}

func (b *NatsBus) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	s := &natsSubscription{
		conn: b.conn,
		in:   make(chan *nats.Msg, 64),
		out:  make(chan Message, 64),
		done: make(chan struct{}),
	}
	if err := s.Add(ctx, topics...); err != nil {
		_ = s.Close()
		return nil, err
	}
	go s.forward()
	return s, nil
}

func (b *NatsBus) Close() error {
	return b.conn.Drain()
}

type natsSubscription struct {
	conn *nats.Conn
	in   chan *nats.Msg
	out  chan Message
	done chan struct{}

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool
}

func (s *natsSubscription) forward() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.in:
			select {
			case s.out <- Message{Topic: SubjectToTopic(msg.Subject), Payload: msg.Data}:
			case <-s.done:
				return
			}
		}
	}
}

func (s *natsSubscription) C() <-chan Message { return s.out }

func (s *natsSubscription) Add(_ context.Context, topics ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("subscription closed")
	}
	for _, t := range topics {
		sub, err := s.conn.ChanSubscribe(TopicToSubject(t), s.in)
		if err != nil {
			return err
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

func (s *natsSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	close(s.done)
	return errors.Join(errs...)
}

func TopicToSubject(topic string) string {
	return natsSubjectPrefix + strings.ReplaceAll(topic, "/", ".")
}

func SubjectToTopic(subject string) string {
	return strings.ReplaceAll(strings.TrimPrefix(subject, natsSubjectPrefix), ".", "/")
}
