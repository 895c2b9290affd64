package repository

import (
	"Parley/internal/model"
	"Parley/internal/pkg/database"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepo interface {
	CreatePrivate(ctx context.Context, conv *model.Conversation, userA, userB uint64) (*model.Conversation, bool, error)
	CreateGroup(ctx context.Context, conv *model.Conversation, memberIDs []uint64) error
	GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error)
	GetConversationByPeerKey(ctx context.Context, peerKey string) (*model.Conversation, error)
	ListByUser(ctx context.Context, userID uint64) ([]*model.Conversation, error)

	Members(ctx context.Context, convID uint64) ([]uint64, error)
	IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error)
	AddMembers(ctx context.Context, convID uint64, userIDs []uint64) ([]uint64, error)
	RemoveMember(ctx context.Context, convID uint64, userID uint64) (bool, error)
	PeersOf(ctx context.Context, userID uint64) ([]uint64, error)
}

type conversationRepoImpl struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

// CreatePrivate 单聊按 peer_key 唯一，已存在时返回已有会话，第二个返回值表示是否新建
func (s *conversationRepoImpl) CreatePrivate(ctx context.Context, conv *model.Conversation, userA, userB uint64) (*model.Conversation, bool, error) {
	if conv.PeerKey == nil {
		return nil, false, errors.New("private conversation requires peer key")
	}
	existing, err := s.GetConversationByPeerKey(ctx, *conv.PeerKey)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		now := time.Now()
		members := []*model.ConversationMember{
			{ConversationID: conv.ID, UserID: userA, JoinedAt: now},
			{ConversationID: conv.ID, UserID: userB, JoinedAt: now},
		}
		return tx.Create(&members).Error
	})
	if database.IsDuplicate(err) {
		// 并发创建，另一方已提交
		existing, err = s.GetConversationByPeerKey(ctx, *conv.PeerKey)
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

// CreateGroup 开启事务创建群聊及初始成员
func (s *conversationRepoImpl) CreateGroup(ctx context.Context, conv *model.Conversation, memberIDs []uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		now := time.Now()
		members := make([]*model.ConversationMember, 0, len(memberIDs))
		for _, uid := range memberIDs {
			members = append(members, &model.ConversationMember{ConversationID: conv.ID, UserID: uid, JoinedAt: now})
		}
		return tx.Create(&members).Error
	})
}

// GetConversation 根据会话 ID 获取会话，不存在时返回 nil
func (s *conversationRepoImpl) GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).First(&conv, convID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversationByPeerKey 根据会话标识获取会话，不存在时返回 nil
func (s *conversationRepoImpl) GetConversationByPeerKey(ctx context.Context, peerKey string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).Where("peer_key = ?", peerKey).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListByUser 用户所在会话，按最后活跃时间倒序
func (s *conversationRepoImpl) ListByUser(ctx context.Context, userID uint64) ([]*model.Conversation, error) {
	var convs []*model.Conversation
	err := s.db.WithContext(ctx).Table("conversations c").
		Select("c.*").
		Joins("JOIN conversation_members m ON m.conversation_id = c.id").
		Where("m.user_id = ?", userID).
		Order("c.last_message_at IS NULL, c.last_message_at DESC, c.id DESC").
		Find(&convs).Error
	return convs, err
}

// Members 会话成员 ID
func (s *conversationRepoImpl) Members(ctx context.Context, convID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ?", convID).
		Order("id").
		Pluck("user_id", &ids).Error
	return ids, err
}

// IsMember 检查用户是否是会话成员
func (s *conversationRepoImpl) IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Count(&count).Error
	return count > 0, err
}

// AddMembers 批量加入，已在群内的忽略，返回实际新增的用户。先锁会话行，与发消息串行
func (s *conversationRepoImpl) AddMembers(ctx context.Context, convID uint64, userIDs []uint64) ([]uint64, error) {
	var added []uint64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockConversation(tx, convID); err != nil {
			return err
		}

		var existing []uint64
		if err := tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ? AND user_id IN ?", convID, userIDs).
			Pluck("user_id", &existing).Error; err != nil {
			return err
		}
		skip := make(map[uint64]struct{}, len(existing))
		for _, id := range existing {
			skip[id] = struct{}{}
		}

		now := time.Now()
		var rows []*model.ConversationMember
		for _, uid := range userIDs {
			if _, ok := skip[uid]; ok {
				continue
			}
			skip[uid] = struct{}{}
			rows = append(rows, &model.ConversationMember{ConversationID: convID, UserID: uid, JoinedAt: now})
			added = append(added, uid)
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
	return added, err
}

// RemoveMember 退出会话，同样先锁会话行
func (s *conversationRepoImpl) RemoveMember(ctx context.Context, convID uint64, userID uint64) (bool, error) {
	var removed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockConversation(tx, convID); err != nil {
			return err
		}
		res := tx.Where("conversation_id = ? AND user_id = ?", convID, userID).
			Delete(&model.ConversationMember{})
		removed = res.RowsAffected > 0
		return res.Error
	})
	return removed, err
}

func lockConversation(tx *gorm.DB, convID uint64) error {
	var id uint64
	return tx.Model(&model.Conversation{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", convID).
		Scan(&id).Error
}

// PeersOf 与该用户同处某个会话的其他用户，用于在线状态订阅
func (s *conversationRepoImpl) PeersOf(ctx context.Context, userID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Table("conversation_members m").
		Distinct("o.user_id").
		Joins("JOIN conversation_members o ON o.conversation_id = m.conversation_id").
		Where("m.user_id = ? AND o.user_id <> ?", userID, userID).
		Pluck("o.user_id", &ids).Error
	return ids, err
}
