package repository

import (
	"Parley/internal/model"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type MessageRepo interface {
	CreateWithStatuses(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, msgID uint64) (*model.Message, error)
	UpdateContentCAS(ctx context.Context, msgID uint64, version uint32, content string, at time.Time) (bool, error)
	TombstoneCAS(ctx context.Context, msgID uint64, version uint32, at time.Time) (bool, error)
	ListVisible(ctx context.Context, convID uint64, offset, limit int) ([]*model.Message, error)

	GetStatus(ctx context.Context, msgID, userID uint64) (*model.MessageStatus, error)
	ListStatuses(ctx context.Context, msgID uint64) ([]*model.MessageStatus, error)
	AdvanceStatus(ctx context.Context, msgID, userID uint64, target model.DeliveryStatus, at time.Time) (bool, error)
	SetReaction(ctx context.Context, msgID, userID uint64, reaction *string) error
}

type messageRepoImpl struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepoImpl{db: db}
}

// CreateWithStatuses 一个事务内完成：会话行锁定序、写消息、写接收者状态、更新最后一条消息指针。
// 接收者在持有会话行锁之后读取，与加人、退群串行，新成员不会漏掉状态行
func (s *messageRepoImpl) CreateWithStatuses(ctx context.Context, msg *model.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Update("max_msg_seq", gorm.Expr("max_msg_seq + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		var seq uint64
		if err := tx.Model(&model.Conversation{}).Select("max_msg_seq").
			Where("id = ?", msg.ConversationID).Scan(&seq).Error; err != nil {
			return err
		}
		msg.Seq = seq

		var recipients []uint64
		if err := tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ? AND user_id <> ?", msg.ConversationID, msg.SenderID).
			Order("id").
			Pluck("user_id", &recipients).Error; err != nil {
			return err
		}

		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		if len(recipients) > 0 {
			statuses := make([]*model.MessageStatus, 0, len(recipients))
			for _, uid := range recipients {
				statuses = append(statuses, &model.MessageStatus{
					MessageID: msg.ID,
					UserID:    uid,
					Status:    model.StatusSent,
				})
			}
			if err := tx.Create(&statuses).Error; err != nil {
				return err
			}
		}

		return tx.Model(&model.Conversation{}).Where("id = ?", msg.ConversationID).
			Updates(map[string]interface{}{
				"last_message_id": msg.ID,
				"last_sender_id":  msg.SenderID,
				"last_message_at": msg.CreatedAt,
			}).Error
	})
}

// GetMessage 不存在时返回 nil
func (s *messageRepoImpl) GetMessage(ctx context.Context, msgID uint64) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).First(&msg, msgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdateContentCAS 版本号比较交换，版本不匹配时返回 false
func (s *messageRepoImpl) UpdateContentCAS(ctx context.Context, msgID uint64, version uint32, content string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND version = ? AND deleted = ?", msgID, version, false).
		Updates(map[string]interface{}{
			"content":   content,
			"edited":    true,
			"edited_at": at,
			"version":   gorm.Expr("version + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

// TombstoneCAS 软删除，内容保留
func (s *messageRepoImpl) TombstoneCAS(ctx context.Context, msgID uint64, version uint32, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND version = ?", msgID, version).
		Updates(map[string]interface{}{
			"deleted":       true,
			"tombstoned_at": at,
			"version":       gorm.Expr("version + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

// ListVisible 按会话序号倒序分页，排除已删除
func (s *messageRepoImpl) ListVisible(ctx context.Context, convID uint64, offset, limit int) ([]*model.Message, error) {
	var msgs []*model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND deleted = ?", convID, false).
		Order("seq DESC").
		Offset(offset).
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// GetStatus 不存在时返回 nil
func (s *messageRepoImpl) GetStatus(ctx context.Context, msgID, userID uint64) (*model.MessageStatus, error) {
	var st model.MessageStatus
	err := s.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", msgID, userID).
		First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *messageRepoImpl) ListStatuses(ctx context.Context, msgID uint64) ([]*model.MessageStatus, error) {
	var list []*model.MessageStatus
	err := s.db.WithContext(ctx).Where("message_id = ?", msgID).Order("user_id").Find(&list).Error
	return list, err
}

// AdvanceStatus 只允许前进，条件更新保证并发下不回退；已读同时补齐送达时间
func (s *messageRepoImpl) AdvanceStatus(ctx context.Context, msgID, userID uint64, target model.DeliveryStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":       target,
		"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", at),
	}
	if target == model.StatusRead {
		updates["read_at"] = at
	}
	res := s.db.WithContext(ctx).Model(&model.MessageStatus{}).
		Where("message_id = ? AND user_id = ? AND status < ?", msgID, userID, target).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// SetReaction 设置或清除表情回应，与投递状态无关
func (s *messageRepoImpl) SetReaction(ctx context.Context, msgID, userID uint64, reaction *string) error {
	return s.db.WithContext(ctx).Model(&model.MessageStatus{}).
		Where("message_id = ? AND user_id = ?", msgID, userID).
		Update("reaction", reaction).Error
}
