package logger

import (
	"context"
	log "log/slog"
)

// TraceIDKey 定义 Context 中的链路 Key
const TraceIDKey = "trace_id"

// ConvKey 定义 Context 中的会话 Key，聊天链路日志都带上它
const ConvKey = "conv"

// ContextHandler 包装器，从 ctx 中提取 trace_id 与会话标识
type ContextHandler struct {
	log.Handler
}

func (h *ContextHandler) Handle(ctx context.Context, r log.Record) error {
	if ctx != nil {
		if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
			r.AddAttrs(log.String(TraceIDKey, traceID))
		}
		if conv, ok := ctx.Value(ConvKey).(string); ok && conv != "" {
			r.AddAttrs(log.String(ConvKey, conv))
		}
	}
	return h.Handler.Handle(ctx, r)
}

// WithConv 把会话标识写入 ctx，供 ContextHandler 提取
func WithConv(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ConvKey, conversationID)
}
