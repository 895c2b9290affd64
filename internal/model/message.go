package model

import "time"

// Message 消息表，删除为墓碑标记，内容保留
type Message struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64     `gorm:"not null;index:idx_conv_seq,priority:1" json:"conversationId"`
	Seq            uint64     `gorm:"not null;index:idx_conv_seq,priority:2" json:"seq"` // 会话内定序
	SenderID       uint64     `gorm:"not null;index" json:"senderId"`
	Content        string     `gorm:"type:text" json:"content"`
	Type           string     `gorm:"type:varchar(16);not null;default:'TEXT'" json:"type"`
	ReplyToID      *uint64    `json:"replyToId"`
	Edited         bool       `gorm:"not null;default:false" json:"edited"`
	EditedAt       *time.Time `json:"editedAt"`
	Deleted        bool       `gorm:"not null;default:false" json:"deleted"`
	TombstonedAt   *time.Time `json:"-"`
	Version        uint32     `gorm:"not null;default:1" json:"version"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (Message) TableName() string { return "messages" }
