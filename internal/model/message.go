package model

import (
	"time"

	"Courtyard/internal/pkg/consts"
)

// MessageStatus 消息投递状态，仅存在于客户端视图，不随消息上行
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusError     MessageStatus = "error"
)

var statusRank = map[MessageStatus]int{
	StatusSending:   0,
	StatusError:     1,
	StatusSent:      2,
	StatusDelivered: 3,
}

// Supersedes 状态只升不降：仅当 s 严格高于 prev 时允许覆盖
func (s MessageStatus) Supersedes(prev MessageStatus) bool {
	return statusRank[s] > statusRank[prev]
}

// Message 单聊消息的规范形态，所有入口经归一化后才允许入库
type Message struct {
	MessageID      string       `json:"messageId"`             // 服务端 ID，乐观消息阶段等于 ClientMsgID
	ClientMsgID    string       `json:"clientMsgId,omitempty"` // 客户端生成，echo 对账的匹配键
	Seq            int64        `json:"seq"`                   // 会话内单调递增，排序唯一依据
	ConversationID string       `json:"conversationId"`
	SenderID       string       `json:"senderId"`
	RecipientID    string       `json:"recipientId"`
	Body           string       `json:"body"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Attachment 消息附件，缺 ID 或 MIME 类型的条目在归一化时静默丢弃
type Attachment struct {
	ID       string `json:"id"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size,omitempty"`
	FileName string `json:"fileName,omitempty"`
	URL      string `json:"url,omitempty"`
}

// DisplayMessage 渲染层视图：消息本体加派生的投递状态
type DisplayMessage struct {
	Message
	Status MessageStatus `json:"status"`
	IsOwn  bool          `json:"isOwn"`
	Error  string        `json:"error,omitempty"`
}

// ConversationKey 会话 ID 对参与双方对称：chat:{小}:{大}，按字典序取小大
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return consts.ConversationKeyPrefix + a + ":" + b
}
