package handler

import (
	"Parley/internal/api/dto"
	"Parley/internal/pkg/response"
	"Parley/internal/service"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	presenceSvc service.PresenceService
}

func NewPresenceHandler(presenceSvc service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceSvc: presenceSvc}
}

func (s *PresenceHandler) GetPresence(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	status, err := s.presenceSvc.Status(c, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.PresenceDTO{UserID: userID, Status: string(status)})
}
