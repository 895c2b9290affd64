package es

import "time"

// MessageES 检索用的消息文档，已删除的消息不入索引
type MessageES struct {
	ID             uint64    `json:"id"`
	ConversationID uint64    `json:"conversation_id"`
	SenderID       uint64    `json:"sender_id"`
	Seq            uint64    `json:"seq"`
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`

	Highlight []string `json:"-"`
}
