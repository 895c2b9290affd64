package dto

import (
	"time"

	"github.com/goccy/go-json"
)

// Envelope 推送给客户端的统一外壳
type Envelope struct {
	Topic string          `json:"topic"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ts    time.Time       `json:"ts"`
}

// WSFrame 客户端上行帧
type WSFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WSTypingReq 上行：正在输入
type WSTypingReq struct {
	ConversationID uint64 `json:"conversation_id" validate:"required"`
	Typing         bool   `json:"typing"`
}

// WSCallReq 上行：仅携带通话 ID
type WSCallReq struct {
	CallID uint64 `json:"call_id" validate:"required"`
}

// WSSignalReq 上行：offer/answer
type WSSignalReq struct {
	CallID uint64 `json:"call_id" validate:"required"`
	SDP    string `json:"sdp" validate:"required"`
}

// WSIceCandidateReq 上行：ICE candidate
type WSIceCandidateReq struct {
	CallID        uint64  `json:"call_id" validate:"required"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdp_mid"`
	SDPMLineIndex *uint16 `json:"sdp_mline_index"`
}

// WSError 下行：上行帧处理失败
type WSError struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}
