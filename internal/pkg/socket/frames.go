package socket

import (
	json "github.com/goccy/go-json"
)

// Envelope 推送通道统一帧：{event, data}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeFrame 把事件和载荷编码为一条文本帧，两端共用
func EncodeFrame(event string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: payload})
}
