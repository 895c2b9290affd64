package consts

// 消息类型
const (
	MessageTypeText  = "TEXT"
	MessageTypeImage = "IMAGE"
	MessageTypeAudio = "AUDIO"
	MessageTypeVideo = "VIDEO"
	MessageTypeFile  = "FILE"
)

// 会话类型
const (
	ConversationTypePrivate int8 = 1
	ConversationTypeGroup   int8 = 2
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)
