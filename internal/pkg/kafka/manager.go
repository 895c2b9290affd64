package kafka

import (
	"Parley/internal/api/config"
	"Parley/internal/pkg/es"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

// ConsumerManager 管理所有 Kafka 消费者
type ConsumerManager struct {
	userFollowsConsumer sarama.ConsumerGroup
	userFollowsHandler  sarama.ConsumerGroupHandler

	messagesConsumer sarama.ConsumerGroup
	messagesHandler  sarama.ConsumerGroupHandler
}

// NewConsumerManager 构造函数
func NewConsumerManager(cfg *config.Config, messageESRepo es.MessageRepo) (*ConsumerManager, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka)

	userFollowsConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaFollowConsumer.GroupID, saramaCfg)
	if err != nil {
		return nil, err
	}

	messagesConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaMessageConsumer.GroupID, saramaCfg)
	if err != nil {
		_ = userFollowsConsumer.Close()
		return nil, err
	}

	return &ConsumerManager{
		userFollowsConsumer: userFollowsConsumer,
		userFollowsHandler:  NewUserFollowsHandler(),
		messagesConsumer:    messagesConsumer,
		messagesHandler:     NewMessagesHandler(messageESRepo),
	}, nil
}

// Start 启动所有消费者，ctx 结束后关闭
func (m *ConsumerManager) Start(ctx context.Context, cfg *config.Config) error {
	go m.run(ctx, "User Follows", cfg.KafkaFollowConsumer.Topic, m.userFollowsConsumer, m.userFollowsHandler)
	go m.run(ctx, "Messages", cfg.KafkaMessageConsumer.Topic, m.messagesConsumer, m.messagesHandler)

	<-ctx.Done()
	log.Info("Kafka Manager shutting down...")

	if err := m.userFollowsConsumer.Close(); err != nil {
		log.Error("Failed to close follows consumer", "err", err)
	}
	if err := m.messagesConsumer.Close(); err != nil {
		log.Error("Failed to close messages consumer", "err", err)
	}
	return nil
}

func (m *ConsumerManager) run(ctx context.Context, name, topic string, group sarama.ConsumerGroup, handler sarama.ConsumerGroupHandler) {
	log.Info(name+" consumer started", "topic", topic)
	for {
		if err := group.Consume(ctx, []string{topic}, handler); err != nil {
			log.Error("Error from consumer", "consumer", name, "err", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
