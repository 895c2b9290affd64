package kafka

import (
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

const (
	batchSize    = 32
	batchTimeout = 1 * time.Second

	retryInitial = 100 * time.Millisecond
	retryMax     = 5 * time.Second
)

var (
	errTableMismatch = errors.New("table name not match")
	errEmptyData     = errors.New("data is empty")
)

type LogicFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

// pullMessageBatch 拉取一批消息并执行业务逻辑
func pullMessageBatch(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim, logic LogicFunc) error {
	batch := make([]*sarama.ConsumerMessage, 0, batchSize)
	ticker := time.NewTicker(batchTimeout)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				if len(batch) > 0 {
					processBatch(session, batch, logic)
				}
				return nil
			}
			batch = append(batch, msg)
			if len(batch) >= batchSize {
				processBatch(session, batch, logic)
				// 清空缓冲区 & 重置定时器
				batch = make([]*sarama.ConsumerMessage, 0, batchSize)
				ticker.Reset(batchTimeout)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				processBatch(session, batch, logic)
				batch = make([]*sarama.ConsumerMessage, 0, batchSize)
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// processBatch 按消息 key 分组：同一行的变更顺序执行，不同行之间并发
func processBatch(session sarama.ConsumerGroupSession, messages []*sarama.ConsumerMessage, logic LogicFunc) {
	ctx := session.Context()

	groups := make(map[string][]*sarama.ConsumerMessage)
	order := make([]string, 0)
	for _, msg := range messages {
		key := string(msg.Key)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], msg)
	}

	var wg sync.WaitGroup
	for _, key := range order {
		wg.Add(1)
		go func(msgs []*sarama.ConsumerMessage) {
			defer wg.Done()
			for _, m := range msgs {
				if !runWithRetry(ctx, m, logic) {
					return
				}
			}
		}(groups[key])
	}
	wg.Wait()

	// 会话已结束时不提交，重平衡后由新的消费者重放
	if ctx.Err() != nil {
		return
	}
	session.MarkMessage(messages[len(messages)-1], "")
}

// runWithRetry 失败后指数退避重试直到成功，会话结束返回 false
func runWithRetry(ctx context.Context, m *sarama.ConsumerMessage, logic LogicFunc) bool {
	interval := retryInitial
	for {
		err := logic(ctx, m)
		if err == nil {
			return true
		}
		log.ErrorContext(ctx, "process message error",
			"topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "err", err)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		interval *= 2
		if interval > retryMax {
			interval = retryMax
		}
	}
}

// ToCanalMessage 将kafka消息转换为canal消息结构体，DDL 与其他表的变更返回错误
func ToCanalMessage(msg *sarama.ConsumerMessage, tableName string) (*CanalMessage, error) {
	var canalMsg CanalMessage
	if err := json.Unmarshal(msg.Value, &canalMsg); err != nil {
		log.Error("unmarshal canal message error", "err", err)
		return nil, err
	}

	if canalMsg.IsDDL || canalMsg.Table != tableName {
		return nil, errTableMismatch
	}

	if len(canalMsg.Data) == 0 {
		return nil, errEmptyData
	}

	return &canalMsg, nil
}
