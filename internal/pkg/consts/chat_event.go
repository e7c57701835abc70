package consts

// 服务端推送事件
const (
	EventMessage   = "chat:message"
	EventEcho      = "chat:echo"
	EventDelivered = "chat:delivered"
	EventTyping    = "chat:typing"
)

// 客户端上行事件
const (
	EmitTyping = "typing"
)

const (
	SocketPath        = "/chat"
	SendMessagePath   = "/chat/messages"
	ConversationsPath = "/chat/conversations"
)
