package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewClientMsgID 客户端消息 ID，发送前生成，echo 对账的匹配键
func NewClientMsgID() string {
	return "c-" + uuid.New().String()
}

// NewPlaceholderID 归一化兜底用的唯一占位 ID
func NewPlaceholderID() string {
	return "ph-" + uuid.New().String()
}

// WebsocketURL 把 http(s) 入口转成 ws(s) 入口
func WebsocketURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	}
	return baseURL
}

// PtrInt64 用于将 int64 转换为 *int64
func PtrInt64(i int64) *int64 {
	return &i
}
