package handler

import (
	"Parley/internal/api/dto"
	"Parley/internal/pkg/response"
	"Parley/internal/service"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	conversationSvc service.ConversationService
}

func NewConversationHandler(conversationSvc service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationSvc: conversationSvc}
}

// ListConversations 当前用户的会话列表
func (s *ConversationHandler) ListConversations(c *gin.Context) {
	userID := c.GetUint64("user_id")
	res, err := s.conversationSvc.ListConversations(c, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// CreatePrivate 与好友建立单聊，已存在则直接返回
func (s *ConversationHandler) CreatePrivate(c *gin.Context) {
	peerID, ok := pathID(c, "user_id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.conversationSvc.CreatePrivateConversation(c, c.GetUint64("user_id"), peerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *ConversationHandler) CreateGroup(c *gin.Context) {
	var req dto.CreateGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.conversationSvc.CreateGroupConversation(c, c.GetUint64("user_id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *ConversationHandler) AddMembers(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	var req dto.AddMembersReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	added, err := s.conversationSvc.AddMembers(c, convID, c.GetUint64("user_id"), req.UserIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, map[string][]uint64{"added": added})
}

func (s *ConversationHandler) Leave(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err := s.conversationSvc.LeaveConversation(c, convID, c.GetUint64("user_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *ConversationHandler) GetConversation(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.conversationSvc.GetConversation(c, convID, c.GetUint64("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
