package service

import (
	"Parley/internal/api/config"
	"Parley/internal/model"
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/redis"
	"Parley/internal/repository"
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// RelationshipGate 好友关系判定，私聊与通话都依赖它
type RelationshipGate interface {
	AreFriends(ctx context.Context, userA, userB uint64) (bool, error)
}

// MembershipLookup 会话成员查询
type MembershipLookup interface {
	Members(ctx context.Context, convID uint64) ([]uint64, error)
	IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error)
}

// ---------------- 本地实现：redis 关注集合 + MySQL 兜底 ----------------

type localRelationshipGate struct {
	userFollowRepo repository.UserFollowRepo
}

func NewLocalRelationshipGate(userFollowRepo repository.UserFollowRepo) RelationshipGate {
	return &localRelationshipGate{userFollowRepo: userFollowRepo}
}

// AreFriends 互相关注即为好友
func (s *localRelationshipGate) AreFriends(ctx context.Context, userA, userB uint64) (bool, error) {
	if userA == userB {
		return false, nil
	}
	ab, errAB := redis.ZIsMember(ctx, consts.UserFollowingKey+strconv.FormatUint(userA, 10), strconv.FormatUint(userB, 10))
	ba, errBA := redis.ZIsMember(ctx, consts.UserFollowingKey+strconv.FormatUint(userB, 10), strconv.FormatUint(userA, 10))
	if errAB == nil && errBA == nil && ab && ba {
		return true, nil
	}
	// 缓存可能未命中或未预热，以数据库为准
	return s.userFollowRepo.IsMutual(ctx, userA, userB)
}

// ---------------- 远程实现：外部关系服务 ----------------

type remoteRelationshipGate struct {
	client  *resty.Client
	baseURL string
}

type remoteFriendsResp struct {
	Friends bool `json:"friends"`
}

func NewRemoteRelationshipGate(cfg config.RelationshipConfig) RelationshipGate {
	client := resty.New().
		SetTimeout(cfg.Timeout()).
		SetHeader("Accept", "application/json")
	return &remoteRelationshipGate{client: client, baseURL: cfg.RemoteURL}
}

func (s *remoteRelationshipGate) AreFriends(ctx context.Context, userA, userB uint64) (bool, error) {
	var out remoteFriendsResp
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"a": strconv.FormatUint(userA, 10),
			"b": strconv.FormatUint(userB, 10),
		}).
		SetResult(&out).
		Get(s.baseURL + "/internal/relationships/friends")
	if err != nil {
		return false, fmt.Errorf("relationship service: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return false, fmt.Errorf("relationship service: unexpected status %d", resp.StatusCode())
	}
	return out.Friends, nil
}

// ---------------- 带超时与显式兜底值的包装 ----------------

type guardedRelationshipGate struct {
	next     RelationshipGate
	timeout  time.Duration
	fallback bool
}

// GuardRelationship 超时或失败时返回 fallback，不向上抛错
func GuardRelationship(next RelationshipGate, timeout time.Duration, fallback bool) RelationshipGate {
	return &guardedRelationshipGate{next: next, timeout: timeout, fallback: fallback}
}

func (g *guardedRelationshipGate) AreFriends(ctx context.Context, userA, userB uint64) (bool, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	ok, err := g.next.AreFriends(ctx, userA, userB)
	if err != nil {
		log.WarnContext(ctx, "relationship gate failed, using fallback",
			"user_a", userA, "user_b", userB, "fallback", g.fallback, "err", err)
		return g.fallback, nil
	}
	return ok, nil
}

type guardedMembership struct {
	next    MembershipLookup
	timeout time.Duration
}

// GuardMembership 查询失败统一返回 ErrGateUnavailable，调用方可重试，不会被误判为非成员
func GuardMembership(next MembershipLookup, timeout time.Duration) MembershipLookup {
	return &guardedMembership{next: next, timeout: timeout}
}

func (g *guardedMembership) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *guardedMembership) IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	ok, err := g.next.IsMember(ctx, convID, userID)
	if err != nil {
		log.WarnContext(ctx, "membership lookup failed",
			"conversation_id", convID, "user_id", userID, "err", err)
		return false, ErrGateUnavailable
	}
	return ok, nil
}

func (g *guardedMembership) Members(ctx context.Context, convID uint64) ([]uint64, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	ids, err := g.next.Members(ctx, convID)
	if err != nil {
		log.WarnContext(ctx, "membership lookup failed", "conversation_id", convID, "err", err)
		return nil, ErrGateUnavailable
	}
	return ids, nil
}

// NewRelationshipGate 按配置选择实现并统一加上保护
func NewRelationshipGate(cfg config.RelationshipConfig, userFollowRepo repository.UserFollowRepo) RelationshipGate {
	var gate RelationshipGate
	switch cfg.Mode {
	case "remote":
		gate = NewRemoteRelationshipGate(cfg)
	default:
		gate = NewLocalRelationshipGate(userFollowRepo)
	}
	return GuardRelationship(gate, cfg.Timeout(), cfg.Fallback)
}

// ---------------- 关注/好友的薄 CRUD ----------------

type RelationService interface {
	Follow(ctx context.Context, userID, targetID uint64) error
	Unfollow(ctx context.Context, userID, targetID uint64) error
	ListFriends(ctx context.Context, userID uint64, page, pageSize int) ([]uint64, error)
}

type relationServiceImpl struct {
	userFollowRepo repository.UserFollowRepo
}

func NewRelationService(userFollowRepo repository.UserFollowRepo) RelationService {
	return &relationServiceImpl{userFollowRepo: userFollowRepo}
}

// Follow redis 关注集合由 canal 消费者同步，这里只写库
func (s *relationServiceImpl) Follow(ctx context.Context, userID, targetID uint64) error {
	if userID == targetID {
		return ErrSelfConversation
	}
	return s.userFollowRepo.CreateUserFollow(ctx, &model.UserFollow{
		FollowerID:  userID,
		FollowingID: targetID,
		CreatedAt:   time.Now(),
	})
}

func (s *relationServiceImpl) Unfollow(ctx context.Context, userID, targetID uint64) error {
	if userID == targetID {
		return ErrSelfConversation
	}
	return s.userFollowRepo.DeleteUserFollow(ctx, &model.UserFollow{FollowerID: userID, FollowingID: targetID})
}

func (s *relationServiceImpl) ListFriends(ctx context.Context, userID uint64, page, pageSize int) ([]uint64, error) {
	limit, offset := pageBounds(page, pageSize)
	ids, err := s.userFollowRepo.ListMutual(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

// pageBounds page 从 1 开始
func pageBounds(page, pageSize int) (limit, offset int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = consts.DefaultPageSize
	}
	if pageSize > consts.MaxPageSize {
		pageSize = consts.MaxPageSize
	}
	return pageSize, (page - 1) * pageSize
}
