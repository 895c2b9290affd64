package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CallEvent 通话信令审计，只记录状态流转与重协商，不保存 SDP 正文与 ICE candidate
type CallEvent struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CallID     uint64             `bson:"call_id" json:"callId"`
	ActorID    uint64             `bson:"actor_id" json:"actorId"` // 0 表示系统（如振铃超时）
	Event      string             `bson:"event" json:"event"`
	FromStatus string             `bson:"from_status,omitempty" json:"fromStatus,omitempty"`
	ToStatus   string             `bson:"to_status,omitempty" json:"toStatus,omitempty"`
	Detail     string             `bson:"detail,omitempty" json:"detail,omitempty"`
	TraceID    string             `bson:"trace_id,omitempty" json:"traceId,omitempty"`
	CreatedAt  time.Time          `bson:"created_at" json:"createdAt"`
}
