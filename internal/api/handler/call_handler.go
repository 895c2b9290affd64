package handler

import (
	"Parley/internal/api/dto"
	"Parley/internal/pkg/response"
	"Parley/internal/service"

	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	callSvc service.CallService
}

func NewCallHandler(callSvc service.CallService) *CallHandler {
	return &CallHandler{callSvc: callSvc}
}

// InitiateCall 发起单聊音视频通话
func (s *CallHandler) InitiateCall(c *gin.Context) {
	var req dto.InitiateCallReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.callSvc.InitiateCall(c, c.GetUint64("user_id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *CallHandler) MarkRinging(c *gin.Context) {
	callID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.callSvc.MarkRinging(c, callID, c.GetUint64("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *CallHandler) AcceptCall(c *gin.Context) {
	callID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	var req dto.AcceptCallReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.callSvc.AcceptCall(c, callID, c.GetUint64("user_id"), req.AnswerSDP)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *CallHandler) RejectCall(c *gin.Context) {
	callID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.callSvc.RejectCall(c, callID, c.GetUint64("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *CallHandler) EndCall(c *gin.Context) {
	callID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.callSvc.EndCall(c, callID, c.GetUint64("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *CallHandler) GetCall(c *gin.Context) {
	callID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.callSvc.GetCall(c, callID, c.GetUint64("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *CallHandler) ListActive(c *gin.Context) {
	res, err := s.callSvc.ListActiveCalls(c, c.GetUint64("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *CallHandler) ListHistory(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.callSvc.ListCallHistory(c, convID, c.GetUint64("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *CallHandler) ListEvents(c *gin.Context) {
	callID, ok := pathID(c, "id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.callSvc.ListCallEvents(c, callID, c.GetUint64("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *CallHandler) ICEServers(c *gin.Context) {
	response.Success(c, s.callSvc.ICEServers())
}
