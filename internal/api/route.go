package api

import (
	"Parley/internal/api/middleware"
	"Parley/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup, allowOrigins []string) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware(allowOrigins))
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		// 长连接在握手阶段自行鉴权，token 放在 query 中
		apiGroup.GET("/im/ws", group.WSHandler.Connect)

		authGroup := apiGroup.Group("")
		authGroup.Use(middleware.AuthMiddleware())

		convGroup := authGroup.Group("/conversations")
		{
			convGroup.GET("", group.ConversationHandler.ListConversations)
			convGroup.POST("/private/:user_id", group.ConversationHandler.CreatePrivate)
			convGroup.POST("/group", group.ConversationHandler.CreateGroup)
			convGroup.GET("/:id", group.ConversationHandler.GetConversation)
			convGroup.POST("/:id/members", group.ConversationHandler.AddMembers)
			convGroup.DELETE("/:id/members/me", group.ConversationHandler.Leave)
		}

		messageGroup := authGroup.Group("/messages")
		{
			messageGroup.GET("", group.MessageHandler.ListMessages)
			messageGroup.POST("", group.MessageHandler.SendMessage)
			messageGroup.GET("/search", group.MessageHandler.SearchMessages)
			messageGroup.PUT("/:id", group.MessageHandler.EditMessage)
			messageGroup.DELETE("/:id", group.MessageHandler.DeleteMessage)
			messageGroup.POST("/:id/delivered", group.MessageHandler.MarkDelivered)
			messageGroup.POST("/:id/read", group.MessageHandler.MarkRead)
			messageGroup.POST("/:id/reaction", group.MessageHandler.AddReaction)
			messageGroup.GET("/:id/statuses", group.MessageHandler.GetStatuses)
		}

		callGroup := authGroup.Group("/calls")
		{
			callGroup.POST("/initiate", group.CallHandler.InitiateCall)
			callGroup.GET("/active", group.CallHandler.ListActive)
			callGroup.GET("/ice-servers", group.CallHandler.ICEServers)
			callGroup.GET("/conversation/:id", group.CallHandler.ListHistory)
			callGroup.GET("/:id", group.CallHandler.GetCall)
			callGroup.GET("/:id/events", group.CallHandler.ListEvents)
			callGroup.POST("/:id/ringing", group.CallHandler.MarkRinging)
			callGroup.POST("/:id/accept", group.CallHandler.AcceptCall)
			callGroup.POST("/:id/reject", group.CallHandler.RejectCall)
			callGroup.POST("/:id/end", group.CallHandler.EndCall)
		}

		relationGroup := authGroup.Group("/relations")
		{
			relationGroup.POST("/follow/:user_id", group.RelationHandler.Follow)
			relationGroup.DELETE("/follow/:user_id", group.RelationHandler.Unfollow)
			relationGroup.GET("/friends", group.RelationHandler.ListFriends)
		}

		authGroup.GET("/presence/:user_id", group.PresenceHandler.GetPresence)
	}

	return r
}
