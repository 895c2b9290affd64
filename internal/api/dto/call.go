package dto

import (
	"Parley/internal/model"
	"time"
)

// InitiateCallReq 发起通话
type InitiateCallReq struct {
	ConversationID uint64         `json:"conversation_id" binding:"required"`
	CalleeID       uint64         `json:"callee_id" binding:"required"`
	Type           model.CallType `json:"type" binding:"required,oneof=AUDIO VIDEO"`
	OfferSDP       string         `json:"offer_sdp" binding:"required"`
}

// AcceptCallReq 接听
type AcceptCallReq struct {
	AnswerSDP string `json:"answer_sdp" binding:"required"`
}

// CallDTO 通话响应
type CallDTO struct {
	ID             uint64           `json:"id"`
	ConversationID uint64           `json:"conversation_id"`
	CallerID       uint64           `json:"caller_id"`
	CalleeID       uint64           `json:"callee_id"`
	Type           model.CallType   `json:"type"`
	Status         model.CallStatus `json:"status"`
	OfferSDP       string           `json:"offer_sdp,omitempty"`
	AnswerSDP      string           `json:"answer_sdp,omitempty"`
	InitiatedAt    time.Time        `json:"initiated_at"`
	AnsweredAt     *time.Time       `json:"answered_at,omitempty"`
	EndedAt        *time.Time       `json:"ended_at,omitempty"`
	Duration       int64            `json:"duration"`
	EndReason      string           `json:"end_reason,omitempty"`
}

// SignalDTO offer/answer 转发
type SignalDTO struct {
	CallID     uint64 `json:"call_id"`
	FromUserID uint64 `json:"from_user_id"`
	SDP        string `json:"sdp"`
}

// IceCandidateDTO ICE candidate 转发，candidate 为空表示收集结束
type IceCandidateDTO struct {
	CallID        uint64  `json:"call_id"`
	FromUserID    uint64  `json:"from_user_id"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdp_mline_index,omitempty"`
}

// CallEventDTO 通话信令审计记录
type CallEventDTO struct {
	CallID     uint64    `json:"call_id"`
	ActorID    uint64    `json:"actor_id"`
	Event      string    `json:"event"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}
