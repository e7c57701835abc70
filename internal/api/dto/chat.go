package dto

import "time"

// SendMessageReq 发送消息请求体
type SendMessageReq struct {
	ToUserID    string `json:"to_user_id" binding:"required"`
	Body        string `json:"body" binding:"required"`
	ClientMsgID string `json:"client_msg_id" binding:"required"`
}

// HistoryResp 历史消息响应，条目保持原始形态，入库前先归一化
type HistoryResp struct {
	Items []map[string]interface{} `json:"items"`
}

// DeliveryReq 投递回执请求体
type DeliveryReq struct {
	DeliveredSeq int64 `json:"delivered_seq" binding:"required"`
}

// DeliveryResp 投递回执响应，服务端可能回传钳制后的水位；0 表示未回传
type DeliveryResp struct {
	DeliveredSeq int64 `json:"delivered_seq"`
}

// DeliveredEvent 对端投递水位推送
type DeliveredEvent struct {
	PeerID         string `json:"peerId"`
	ConversationID string `json:"conversationId"`
	DeliveredSeq   int64  `json:"deliveredSeq"`
	Source         string `json:"source,omitempty"`
}

// TypingEvent 正在输入推送
type TypingEvent struct {
	FromUserID string `json:"from_user_id"`
	PeerID     string `json:"peer_id"`
}

// TypingReq 客户端上行的正在输入信号
type TypingReq struct {
	PeerID string `json:"peer_id" binding:"required"`
}

// ConversationSummary 会话列表项
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	PeerID         string    `json:"peer_id"`
	LastSeq        int64     `json:"last_seq"`
	LastBody       string    `json:"last_body"`
	LastSenderID   string    `json:"last_sender_id"`
	DeliveredSeq   int64     `json:"delivered_seq"`
	UnreadCount    int64     `json:"unreadCount"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ConversationsResp 会话列表响应
type ConversationsResp struct {
	Items []ConversationSummary `json:"items"`
}
