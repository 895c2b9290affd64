package dto

import "time"

// CreateGroupReq 创建群聊
type CreateGroupReq struct {
	Name      string   `json:"name" binding:"required,max=64"`
	MemberIDs []uint64 `json:"member_ids" binding:"required,min=1,max=200"`
}

// AddMembersReq 拉人进群
type AddMembersReq struct {
	UserIDs []uint64 `json:"user_ids" binding:"required,min=1,max=200"`
}

// TypingDTO 正在输入
type TypingDTO struct {
	ConversationID uint64 `json:"conversation_id"`
	UserID         uint64 `json:"user_id"`
	Typing         bool   `json:"typing"`
}

// ConversationDTO 会话响应
type ConversationDTO struct {
	ID            uint64     `json:"id"`
	Type          int8       `json:"type"` // 1-单聊, 2-群聊
	IsGroup       bool       `json:"is_group"`
	Name          string     `json:"name"`
	CreatorID     uint64     `json:"creator_id"`
	PeerID        uint64     `json:"peer_id,omitempty"` // 对手方ID (单聊有效)
	Members       []uint64   `json:"members"`
	LastMessageID uint64     `json:"last_message_id"`
	LastSenderID  uint64     `json:"last_sender_id"`
	LastMessageAt *time.Time `json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// MembersChangedDTO 成员变更推送
type MembersChangedDTO struct {
	ConversationID uint64   `json:"conversation_id"`
	ActorID        uint64   `json:"actor_id"`
	UserIDs        []uint64 `json:"user_ids"`
}

// PresenceDTO 在线状态
type PresenceDTO struct {
	UserID uint64 `json:"user_id"`
	Status string `json:"status"`
}
