package consts

const (
	HeaderUserID   = "X-User-Id"
	HeaderCampusID = "X-Campus-Id"
	HeaderTraceID  = "X-Trace-ID"
)

const (
	ConversationKeyPrefix = "chat:"
)

const (
	DefaultHistoryLimit = 50
)
