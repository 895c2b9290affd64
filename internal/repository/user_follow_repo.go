package repository

import (
	"Parley/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserFollowRepo interface {
	GetUserFollow(ctx context.Context, userID uint64, followingID uint64) (*model.UserFollow, error)
	CreateUserFollow(ctx context.Context, userFollow *model.UserFollow) error
	DeleteUserFollow(ctx context.Context, userFollow *model.UserFollow) error
	IsMutual(ctx context.Context, userA, userB uint64) (bool, error)
	ListMutual(ctx context.Context, userID uint64, limit, offset int) ([]uint64, error)
}

type userFollowRepoImpl struct {
	db *gorm.DB
}

func NewUserFollowRepo(db *gorm.DB) UserFollowRepo {
	return &userFollowRepoImpl{db: db}
}

// GetUserFollow 获取用户的关注关系，不存在时返回 nil
func (s *userFollowRepoImpl) GetUserFollow(ctx context.Context, userID uint64, followingID uint64) (*model.UserFollow, error) {
	var userFollow model.UserFollow
	result := s.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", userID, followingID).
		First(&userFollow)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &userFollow, nil
}

// CreateUserFollow 创建用户的关注关系
func (s *userFollowRepoImpl) CreateUserFollow(ctx context.Context, userFollow *model.UserFollow) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(userFollow).Error
}

// DeleteUserFollow 删除用户的关注关系
func (s *userFollowRepoImpl) DeleteUserFollow(ctx context.Context, userFollow *model.UserFollow) error {
	return s.db.WithContext(ctx).Delete(userFollow).Error
}

// IsMutual 双向关注
func (s *userFollowRepoImpl) IsMutual(ctx context.Context, userA, userB uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.UserFollow{}).
		Where("(follower_id = ? AND following_id = ?) OR (follower_id = ? AND following_id = ?)", userA, userB, userB, userA).
		Count(&count).Error
	return count == 2, err
}

// ListMutual 好友列表
func (s *userFollowRepoImpl) ListMutual(ctx context.Context, userID uint64, limit, offset int) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Table("user_follows a").
		Joins("JOIN user_follows b ON b.follower_id = a.following_id AND b.following_id = a.follower_id").
		Where("a.follower_id = ?", userID).
		Order("a.created_at DESC").
		Limit(limit).
		Offset(offset).
		Pluck("a.following_id", &ids).Error
	return ids, err
}
