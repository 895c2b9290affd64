package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CallEventRepo interface {
	SaveEvent(ctx context.Context, event *CallEvent) error
	ListByCall(ctx context.Context, callID uint64, limit int64) ([]*CallEvent, error)
	EnsureIndexes(ctx context.Context) error
}

type callEventRepoImpl struct {
	col *mongo.Collection
}

func NewCallEventRepo(db *mongo.Database) CallEventRepo {
	return &callEventRepoImpl{
		col: db.Collection("call_events"),
	}
}

// SaveEvent 追加一条审计记录
func (s *callEventRepoImpl) SaveEvent(ctx context.Context, event *CallEvent) error {
	_, err := s.col.InsertOne(ctx, event)
	return err
}

// ListByCall 按时间正序返回一次通话的全部事件
func (s *callEventRepoImpl) ListByCall(ctx context.Context, callID uint64, limit int64) ([]*CallEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(limit)

	cursor, err := s.col.Find(ctx, bson.M{"call_id": callID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var list []*CallEvent
	if err = cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// EnsureIndexes call_id + created_at 复合索引
func (s *callEventRepoImpl) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "call_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}
