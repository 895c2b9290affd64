package consts

import "fmt"

// 推送事件类型
const (
	EventMessageSent         = "MessageSent"
	EventMessageUpdated      = "MessageUpdated"
	EventMessageDelivered    = "MessageDelivered"
	EventMessageRead         = "MessageRead"
	EventMessageReacted      = "MessageReacted"
	EventTyping              = "Typing"
	EventPresenceChanged     = "PresenceChanged"
	EventConversationCreated = "ConversationCreated"
	EventMembersAdded        = "MembersAdded"
	EventMemberLeft          = "MemberLeft"
	EventIncomingCall        = "IncomingCall"
	EventCallRinging         = "CallRinging"
	EventCallAccepted        = "CallAccepted"
	EventCallRejected        = "CallRejected"
	EventCallEnded           = "CallEnded"
	EventCallOffer           = "CallOffer"
	EventCallAnswer          = "CallAnswer"
	EventIceCandidate        = "IceCandidate"
)

// 用户维度的推送主题后缀
const (
	UserTopicStatus        = "status"
	UserTopicConversations = "conversations"
	UserTopicIncomingCall  = "incoming-call"
	UserTopicCallRinging   = "call-ringing"
	UserTopicCallAccepted  = "call-accepted"
	UserTopicCallRejected  = "call-rejected"
	UserTopicCallEnded     = "call-ended"
	UserTopicCallOffer     = "call-offer"
	UserTopicCallAnswer    = "call-answer"
	UserTopicIceCandidate  = "ice-candidate"
)

// PrivateUserTopics 连接建立时为本人订阅的主题，status 由好友订阅
var PrivateUserTopics = []string{
	UserTopicConversations,
	UserTopicIncomingCall,
	UserTopicCallRinging,
	UserTopicCallAccepted,
	UserTopicCallRejected,
	UserTopicCallEnded,
	UserTopicCallOffer,
	UserTopicCallAnswer,
	UserTopicIceCandidate,
}

func ConversationTopic(conversationID uint64) string {
	return fmt.Sprintf("conversation/%d", conversationID)
}

func ConversationStatusTopic(conversationID uint64) string {
	return fmt.Sprintf("conversation/%d/status", conversationID)
}

func UserTopic(userID uint64, suffix string) string {
	return fmt.Sprintf("user/%d/%s", userID, suffix)
}
