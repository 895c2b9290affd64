package model

import "time"

type CallType string

const (
	CallTypeAudio CallType = "AUDIO"
	CallTypeVideo CallType = "VIDEO"
)

type CallStatus string

const (
	CallInitiated CallStatus = "INITIATED"
	CallRinging   CallStatus = "RINGING"
	CallConnected CallStatus = "CONNECTED"
	CallEnded     CallStatus = "ENDED"
	CallRejected  CallStatus = "REJECTED"
)

// ActiveCallStatuses 占线判定用的非终态
var ActiveCallStatuses = []CallStatus{CallInitiated, CallRinging, CallConnected}

// PendingCallStatuses 尚未接通
var PendingCallStatuses = []CallStatus{CallInitiated, CallRinging}

func (s CallStatus) IsTerminal() bool {
	return s == CallEnded || s == CallRejected
}

// 结束原因
const (
	EndReasonHangup   = "HANGUP"
	EndReasonRejected = "REJECTED"
	EndReasonTimeout  = "TIMEOUT"
)

// Call 通话记录，主叫与被叫必须是同一单聊会话的成员
type Call struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64     `gorm:"not null;index" json:"conversationId"`
	CallerID       uint64     `gorm:"not null;index:idx_caller_status,priority:1" json:"callerId"`
	CalleeID       uint64     `gorm:"not null;index:idx_callee_status,priority:1" json:"calleeId"`
	Type           CallType   `gorm:"type:varchar(8);not null" json:"type"`
	Status         CallStatus `gorm:"type:varchar(16);not null;index:idx_caller_status,priority:2;index:idx_callee_status,priority:2" json:"status"`
	OfferSDP       string     `gorm:"type:mediumtext" json:"offerSdp,omitempty"`
	AnswerSDP      string     `gorm:"type:mediumtext" json:"answerSdp,omitempty"`
	InitiatedAt    time.Time  `gorm:"not null;index" json:"initiatedAt"`
	AnsweredAt     *time.Time `json:"answeredAt"`
	EndedAt        *time.Time `json:"endedAt"`
	Duration       int64      `gorm:"not null;default:0" json:"duration"` // 秒
	EndReason      string     `gorm:"type:varchar(16)" json:"endReason,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (Call) TableName() string { return "calls" }

// PeerOf 返回另一方，非参与者返回 false
func (c *Call) PeerOf(userID uint64) (uint64, bool) {
	switch userID {
	case c.CallerID:
		return c.CalleeID, true
	case c.CalleeID:
		return c.CallerID, true
	}
	return 0, false
}

// IsParticipant 是否为通话双方之一
func (c *Call) IsParticipant(userID uint64) bool {
	_, ok := c.PeerOf(userID)
	return ok
}

// CallSlot 每个用户一行，发起通话时按 user_id 顺序加行锁，串行化占线检查
type CallSlot struct {
	UserID    uint64    `gorm:"primaryKey;autoIncrement:false"`
	UpdatedAt time.Time
}

func (CallSlot) TableName() string { return "call_slots" }
