package model

import "time"

// UserFollow 关注关系，互相关注即为好友。
// 好友列表按 follower_id 过滤、按 created_at 倒序，复合索引覆盖该查询
type UserFollow struct {
	FollowerID  uint64    `gorm:"primaryKey;index:idx_follower_created,priority:1" json:"follower_id"`
	FollowingID uint64    `gorm:"primaryKey;index:idx_following_id" json:"following_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index:idx_follower_created,priority:2" json:"created_at"`
}

func (UserFollow) TableName() string {
	return "user_follows"
}
