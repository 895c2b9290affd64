package kafka

import (
	"Parley/internal/pkg/es"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

// MessagesHandler 将 messages 表的 binlog 同步到检索索引，已删除的消息从索引移除
type MessagesHandler struct {
	messageESRepo es.MessageRepo
}

func NewMessagesHandler(messageESRepo es.MessageRepo) *MessagesHandler {
	return &MessagesHandler{messageESRepo: messageESRepo}
}

func (s *MessagesHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("messages consumer setup")
	return nil
}

func (s *MessagesHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("messages consumer cleanup")
	return nil
}

func (s *MessagesHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("topic-messages consume claim")
	err := pullMessageBatch(session, claim, s.logic)
	if err != nil {
		log.Error("topic-messages process batch error", "err", err)
		return err
	}
	log.Info("topic-messages consume claim end")
	return nil
}

func (s *MessagesHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	canalMsg, err := ToCanalMessage(msg, "messages")
	if err != nil || canalMsg == nil {
		return nil
	}
	return s.apply(ctx, canalMsg)
}

func (s *MessagesHandler) apply(ctx context.Context, canalMsg *CanalMessage) error {
	for _, row := range canalMsg.Data {
		id := StrToUint64(row["id"])
		if id == 0 {
			continue
		}

		if canalMsg.Type == DELETE || StrToBool(row["deleted"]) {
			if err := s.messageESRepo.DeleteMessage(ctx, id); err != nil {
				return err
			}
			continue
		}

		doc := toMessageES(row)
		// 以消息版本号作为外部版本，编辑前的旧事件不会覆盖新内容
		if err := s.messageESRepo.IndexMessage(ctx, doc, int64(StrToUint64(row["version"]))); err != nil {
			return err
		}
	}
	return nil
}

func toMessageES(row map[string]interface{}) *es.MessageES {
	msgType, _ := row["type"].(string)
	content, _ := row["content"].(string)
	return &es.MessageES{
		ID:             StrToUint64(row["id"]),
		ConversationID: StrToUint64(row["conversation_id"]),
		SenderID:       StrToUint64(row["sender_id"]),
		Seq:            StrToUint64(row["seq"]),
		Type:           msgType,
		Content:        content,
		CreatedAt:      StrToTime(row["created_at"]),
	}
}
