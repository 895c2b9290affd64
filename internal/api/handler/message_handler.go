package handler

import (
	"Parley/internal/api/dto"
	"Parley/internal/pkg/response"
	"Parley/internal/service"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	messageSvc service.MessageService
}

func NewMessageHandler(messageSvc service.MessageService) *MessageHandler {
	return &MessageHandler{messageSvc: messageSvc}
}

// SendMessage 发送消息接口
func (s *MessageHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	res, err := s.messageSvc.SendMessage(c, c.GetUint64("user_id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// ListMessages 历史消息，按序号倒序分页
func (s *MessageHandler) ListMessages(c *gin.Context) {
	var req dto.ListMessagesReq
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	res, err := s.messageSvc.ListMessages(c, req.ConversationID, c.GetUint64("user_id"), req.Page, req.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *MessageHandler) EditMessage(c *gin.Context) {
	msgID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	var req dto.EditMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	res, err := s.messageSvc.EditMessage(c, msgID, c.GetUint64("user_id"), req.Content)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *MessageHandler) DeleteMessage(c *gin.Context) {
	msgID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err := s.messageSvc.DeleteMessage(c, msgID, c.GetUint64("user_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *MessageHandler) MarkDelivered(c *gin.Context) {
	msgID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.messageSvc.MarkDelivered(c, msgID, c.GetUint64("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *MessageHandler) MarkRead(c *gin.Context) {
	msgID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.messageSvc.MarkRead(c, msgID, c.GetUint64("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// AddReaction reaction 为空串时取消
func (s *MessageHandler) AddReaction(c *gin.Context) {
	msgID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	var req dto.ReactionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err := s.messageSvc.AddReaction(c, msgID, c.GetUint64("user_id"), req.Reaction); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *MessageHandler) GetStatuses(c *gin.Context) {
	msgID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.messageSvc.GetMessageStatuses(c, msgID, c.GetUint64("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *MessageHandler) SearchMessages(c *gin.Context) {
	var req dto.SearchMessagesReq
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.messageSvc.SearchMessages(c, c.GetUint64("user_id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
