package service

import (
	"Parley/internal/api/config"
	"Parley/internal/api/dto"
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/redis"
	"context"
	log "log/slog"
	"strconv"
	"time"
)

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "ONLINE"
	PresenceOffline PresenceStatus = "OFFLINE"
	// PresenceUnknown 没有记录或租约已过期
	PresenceUnknown PresenceStatus = "UNKNOWN"
)

// PresenceReader 只读视图，推送分发只用它记录日志
type PresenceReader interface {
	Status(ctx context.Context, userID uint64) (PresenceStatus, error)
}

type PresenceService interface {
	PresenceReader
	SetOnline(ctx context.Context, userID uint64) error
	SetOffline(ctx context.Context, userID uint64) error
	IsOnline(ctx context.Context, userID uint64) (bool, error)
	Refresh(ctx context.Context, userID uint64, connID string) error
	Attach(ctx context.Context, userID uint64, connID string) error
	Detach(ctx context.Context, userID uint64, connID string) error
}

type redisPresenceReader struct{}

func NewPresenceReader() PresenceReader {
	return redisPresenceReader{}
}

func (redisPresenceReader) Status(ctx context.Context, userID uint64) (PresenceStatus, error) {
	v, err := redis.GetValue(ctx, presenceKey(userID))
	if err != nil {
		return PresenceUnknown, err
	}
	switch PresenceStatus(v) {
	case PresenceOnline:
		return PresenceOnline, nil
	case PresenceOffline:
		return PresenceOffline, nil
	}
	return PresenceUnknown, nil
}

type presenceServiceImpl struct {
	redisPresenceReader
	lease      time.Duration
	offlineTTL time.Duration
	dispatcher Dispatcher
}

func NewPresenceService(cfg config.PresenceConfig, dispatcher Dispatcher) PresenceService {
	lease := cfg.LeaseDuration()
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	offlineTTL := cfg.OfflineDuration()
	if offlineTTL <= 0 {
		offlineTTL = 24 * time.Hour
	}
	return &presenceServiceImpl{lease: lease, offlineTTL: offlineTTL, dispatcher: dispatcher}
}

// SetOnline 写入带租约的 ONLINE 并广播
func (s *presenceServiceImpl) SetOnline(ctx context.Context, userID uint64) error {
	if err := redis.SetWithExpiration(ctx, presenceKey(userID), string(PresenceOnline), s.lease); err != nil {
		return err
	}
	s.publish(ctx, userID, PresenceOnline)
	return nil
}

// SetOffline 写入显式 OFFLINE 标记而不是删除，便于区分“离线”与“未知”
func (s *presenceServiceImpl) SetOffline(ctx context.Context, userID uint64) error {
	if err := redis.SetWithExpiration(ctx, presenceKey(userID), string(PresenceOffline), s.offlineTTL); err != nil {
		return err
	}
	s.publish(ctx, userID, PresenceOffline)
	return nil
}

// IsOnline 不存在或过期都视为不在线
func (s *presenceServiceImpl) IsOnline(ctx context.Context, userID uint64) (bool, error) {
	st, err := s.Status(ctx, userID)
	if err != nil {
		return false, err
	}
	return st == PresenceOnline, nil
}

// Refresh 心跳续租，不广播。连接集合过期后由仍存活的连接重新写回
func (s *presenceServiceImpl) Refresh(ctx context.Context, userID uint64, connID string) error {
	if err := redis.SetWithExpiration(ctx, presenceKey(userID), string(PresenceOnline), s.lease); err != nil {
		return err
	}
	return redis.ZAddWithExpiration(ctx, connKey(userID), connID, unixScore(time.Now()), 2*s.lease)
}

// Attach 长连接建立，多端登录时每个连接一个成员，分数为最近心跳时间
func (s *presenceServiceImpl) Attach(ctx context.Context, userID uint64, connID string) error {
	if err := redis.ZAddWithExpiration(ctx, connKey(userID), connID, unixScore(time.Now()), 2*s.lease); err != nil {
		return err
	}
	return s.SetOnline(ctx, userID)
}

// Detach 最后一个连接断开时才置为离线，超过两个租约没有心跳的连接视为已失效
func (s *presenceServiceImpl) Detach(ctx context.Context, userID uint64, connID string) error {
	staleMax := unixScore(time.Now().Add(-2 * s.lease))
	n, err := redis.ZRemAndCount(ctx, connKey(userID), connID, staleMax)
	if err != nil {
		return err
	}
	if n > 0 {
		log.DebugContext(ctx, "user still has live connections", "user_id", userID, "connections", n)
		return nil
	}
	return s.SetOffline(ctx, userID)
}

func (s *presenceServiceImpl) publish(ctx context.Context, userID uint64, status PresenceStatus) {
	s.dispatcher.Publish(ctx, consts.UserTopic(userID, consts.UserTopicStatus), consts.EventPresenceChanged,
		&dto.PresenceDTO{UserID: userID, Status: string(status)})
}

func presenceKey(userID uint64) string {
	return consts.PresenceKey + strconv.FormatUint(userID, 10)
}

func connKey(userID uint64) string {
	return consts.PresenceConnKey + strconv.FormatUint(userID, 10)
}

func unixScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}
