package handler

import (
	"Parley/internal/api/dto"
	"Parley/internal/pkg/response"
	"Parley/internal/service"

	"github.com/gin-gonic/gin"
)

type RelationHandler struct {
	relationSvc service.RelationService
}

func NewRelationHandler(relationSvc service.RelationService) *RelationHandler {
	return &RelationHandler{relationSvc: relationSvc}
}

func (s *RelationHandler) Follow(c *gin.Context) {
	targetID, ok := pathID(c, "user_id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err := s.relationSvc.Follow(c, c.GetUint64("user_id"), targetID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *RelationHandler) Unfollow(c *gin.Context) {
	targetID, ok := pathID(c, "user_id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err := s.relationSvc.Unfollow(c, c.GetUint64("user_id"), targetID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ListFriends 互相关注的用户
func (s *RelationHandler) ListFriends(c *gin.Context) {
	var req dto.FriendListReq
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.relationSvc.ListFriends(c, c.GetUint64("user_id"), req.Page, req.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
