package dto

import (
	"Parley/internal/model"
	"time"
)

// SendMessageReq 发送消息请求体
type SendMessageReq struct {
	ConversationID uint64  `json:"conversation_id" binding:"required"`
	Content        string  `json:"content" binding:"required,max=4000"`
	Type           string  `json:"type" binding:"omitempty,oneof=TEXT IMAGE AUDIO VIDEO FILE"`
	ReplyToID      *uint64 `json:"reply_to_id"`
}

// EditMessageReq 编辑消息
type EditMessageReq struct {
	Content string `json:"content" binding:"required,max=4000"`
}

// ReactionReq 表情回应，空串表示取消
type ReactionReq struct {
	Reaction string `json:"reaction" binding:"max=32"`
}

// ListMessagesReq 历史消息分页
type ListMessagesReq struct {
	ConversationID uint64 `form:"conversation_id" binding:"required"`
	Page           int    `form:"page"`
	PageSize       int    `form:"page_size"`
}

// SearchMessagesReq 会话内全文检索
type SearchMessagesReq struct {
	ConversationID uint64 `form:"conversation_id" binding:"required"`
	Keyword        string `form:"keyword" binding:"required,max=64"`
	From           int    `form:"from"`
	Size           int    `form:"size"`
}

// MessageDTO 消息明细响应
type MessageDTO struct {
	ID             uint64     `json:"id"`
	ConversationID uint64     `json:"conversation_id"`
	Seq            uint64     `json:"seq"`
	SenderID       uint64     `json:"sender_id"`
	Content        string     `json:"content"`
	Type           string     `json:"type"`
	ReplyToID      *uint64    `json:"reply_to_id,omitempty"`
	Edited         bool       `json:"edited"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	Deleted        bool       `json:"deleted"`
	Version        uint32     `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
}

// MessageStatusDTO 单个接收者的投递状态
type MessageStatusDTO struct {
	MessageID   uint64               `json:"message_id"`
	UserID      uint64               `json:"user_id"`
	Status      model.DeliveryStatus `json:"status"`
	DeliveredAt *time.Time           `json:"delivered_at,omitempty"`
	ReadAt      *time.Time           `json:"read_at,omitempty"`
	Reaction    *string              `json:"reaction,omitempty"`
}

// ReceiptDTO 送达/已读回执推送
type ReceiptDTO struct {
	MessageID      uint64               `json:"message_id"`
	ConversationID uint64               `json:"conversation_id"`
	UserID         uint64               `json:"user_id"`
	Status         model.DeliveryStatus `json:"status"`
	At             time.Time            `json:"at"`
}

// ReactionDTO 表情回应推送
type ReactionDTO struct {
	MessageID      uint64  `json:"message_id"`
	ConversationID uint64  `json:"conversation_id"`
	UserID         uint64  `json:"user_id"`
	Reaction       *string `json:"reaction"`
}

// MessageSearchHit 检索结果
type MessageSearchHit struct {
	ID             uint64    `json:"id"`
	ConversationID uint64    `json:"conversation_id"`
	SenderID       uint64    `json:"sender_id"`
	Seq            uint64    `json:"seq"`
	Content        string    `json:"content"`
	Highlight      []string  `json:"highlight,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
