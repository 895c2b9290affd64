package model

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// DeliveryStatus 投递状态，数值单调递增
type DeliveryStatus int8

const (
	StatusSent      DeliveryStatus = 1
	StatusDelivered DeliveryStatus = 2
	StatusRead      DeliveryStatus = 3
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusSent:
		return "SENT"
	case StatusDelivered:
		return "DELIVERED"
	case StatusRead:
		return "READ"
	}
	return fmt.Sprintf("DeliveryStatus(%d)", int8(s))
}

func (s DeliveryStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *DeliveryStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	switch str {
	case "SENT":
		*s = StatusSent
	case "DELIVERED":
		*s = StatusDelivered
	case "READ":
		*s = StatusRead
	default:
		return fmt.Errorf("unknown delivery status %q", str)
	}
	return nil
}

// MessageStatus 每条消息每个接收者一行，发送者本人没有
type MessageStatus struct {
	MessageID   uint64         `gorm:"primaryKey" json:"messageId"`
	UserID      uint64         `gorm:"primaryKey;index" json:"userId"`
	Status      DeliveryStatus `gorm:"not null;default:1" json:"status"`
	DeliveredAt *time.Time     `json:"deliveredAt"`
	ReadAt      *time.Time     `json:"readAt"`
	Reaction    *string        `gorm:"type:varchar(32)" json:"reaction"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (MessageStatus) TableName() string { return "message_statuses" }
