package model

import (
	"Parley/internal/pkg/consts"
	"time"
)

// Conversation 会话主表
type Conversation struct {
	ID            uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Type          int8       `gorm:"not null;default:1" json:"type"` // 1-单聊, 2-群聊
	Name          string     `gorm:"type:varchar(64)" json:"name"`
	PeerKey       *string    `gorm:"uniqueIndex;type:varchar(64)" json:"-"` // 单聊 uid1_uid2，群聊为空
	CreatorID     uint64     `gorm:"not null;default:0" json:"creatorId"`
	MaxMsgSeq     uint64     `gorm:"not null;default:0" json:"maxMsgSeq"` // 序列号
	LastMessageID uint64     `gorm:"not null;default:0" json:"lastMessageId"`
	LastSenderID  uint64     `gorm:"not null;default:0" json:"lastSenderId"`
	LastMessageAt *time.Time `gorm:"index" json:"lastMessageAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (Conversation) TableName() string { return "conversations" }

// IsGroup 是否群聊
func (c *Conversation) IsGroup() bool { return c.Type == consts.ConversationTypeGroup }

// ConversationMember 会话成员表
type ConversationMember struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64    `gorm:"uniqueIndex:idx_conv_user" json:"conversationId"`
	UserID         uint64    `gorm:"uniqueIndex:idx_conv_user;index" json:"userId"`
	JoinedAt       time.Time `json:"joinedAt"`
}

func (ConversationMember) TableName() string { return "conversation_members" }
