package chat

import (
	"context"

	"Courtyard/internal/api/dto"
)

// Gateway 平台后端的 REST 出口，聊天核心只认这张能力面
type Gateway interface {
	History(ctx context.Context, peerID string) ([]map[string]interface{}, error)
	SendMessage(ctx context.Context, req dto.SendMessageReq) error
	AckDelivery(ctx context.Context, peerID string, deliveredSeq int64) (int64, error)
	Conversations(ctx context.Context) ([]dto.ConversationSummary, error)
}

// Transport 推送通道能力面，断线重连由实现方负责
type Transport interface {
	SubscribeMessages(fn func(raw interface{})) func()
	SubscribeDelivered(fn func(ev dto.DeliveredEvent)) func()
	SubscribeTyping(fn func(ev dto.TypingEvent)) func()
	Emit(event string, data interface{}) error
}
