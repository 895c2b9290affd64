package kafka

import (
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/redis"
	"context"
	log "log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	redisv9 "github.com/redis/go-redis/v9"
)

const maxFollowCache = 1000

// UserFollowsHandler 将 user_follows 的 binlog 同步到 redis 关注集合，供好友关系判定使用
type UserFollowsHandler struct {
}

func NewUserFollowsHandler() *UserFollowsHandler {
	return &UserFollowsHandler{}
}

func (s *UserFollowsHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("user follows consumer setup")
	return nil
}

func (s *UserFollowsHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("user follows consumer cleanup")
	return nil
}

func (s *UserFollowsHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("topic-user-follows consume claim")
	err := pullMessageBatch(session, claim, s.logic)
	if err != nil {
		log.Error("topic-user-follows process batch error", "err", err)
		return err
	}
	log.Info("topic-user-follows consume claim end")
	return nil
}

func (s *UserFollowsHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	canalMsg, err := ToCanalMessage(msg, "user_follows")
	if err != nil || canalMsg == nil {
		return nil
	}
	return s.apply(ctx, canalMsg)
}

func (s *UserFollowsHandler) apply(ctx context.Context, canalMsg *CanalMessage) error {
	pipe := redis.Rdb.Pipeline()
	queued := 0

	for _, row := range canalMsg.Data {
		followerID := StrToUint64(row["follower_id"])
		followingID := StrToUint64(row["following_id"])
		if followerID == 0 || followingID == 0 {
			continue
		}

		fdrKey := consts.UserFollowerKey + strconv.FormatUint(followingID, 10)
		fngKey := consts.UserFollowingKey + strconv.FormatUint(followerID, 10)

		switch canalMsg.Type {
		case INSERT:
			score := float64(StrToTime(row["created_at"]).Unix())
			if score <= 0 {
				score = float64(time.Now().Unix())
			}
			pipe.ZAdd(ctx, fdrKey, redisv9.Z{Score: score, Member: strconv.FormatUint(followerID, 10)})
			pipe.ZRemRangeByRank(ctx, fdrKey, 0, -maxFollowCache-1)
			pipe.ZAdd(ctx, fngKey, redisv9.Z{Score: score, Member: strconv.FormatUint(followingID, 10)})
			pipe.ZRemRangeByRank(ctx, fngKey, 0, -maxFollowCache-1)
			queued++
		case DELETE:
			pipe.ZRem(ctx, fdrKey, strconv.FormatUint(followerID, 10))
			pipe.ZRem(ctx, fngKey, strconv.FormatUint(followingID, 10))
			queued++
		}
	}

	if queued == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.ErrorContext(ctx, "Redis Pipeline Exec failed", "err", err, "table", canalMsg.Table)
		return err
	}
	return nil
}
