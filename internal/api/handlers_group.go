package api

import "Parley/internal/api/handler"

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	ConversationHandler *handler.ConversationHandler
	MessageHandler      *handler.MessageHandler
	CallHandler         *handler.CallHandler
	RelationHandler     *handler.RelationHandler
	PresenceHandler     *handler.PresenceHandler
	WSHandler           *handler.WsHandler
}
