package dto

// FriendListReq 好友列表分页
type FriendListReq struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}
