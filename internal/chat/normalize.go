package chat

import (
	"math"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"

	"Courtyard/internal/model"
	"Courtyard/internal/pkg/util"
)

// Normalize 把任意形态的原始消息整形为规范 Message，绝不报错：
// 每个字段先取 camelCase 再取 snake_case，标识缺失补唯一占位，标量缺失补零值。
// 历史接口和推送帧的字段风格不一致，全部在这一层吸收掉
func Normalize(raw any) model.Message {
	m := asMap(raw)

	var msg model.Message
	msg.MessageID = pickString(m, "messageId", "message_id")
	msg.ClientMsgID = pickString(m, "clientMsgId", "client_msg_id")
	if msg.MessageID == "" {
		if msg.ClientMsgID != "" {
			msg.MessageID = msg.ClientMsgID
		} else {
			msg.MessageID = util.NewPlaceholderID()
		}
	}

	msg.Seq = pickInt64(m, "seq", "seq")
	msg.SenderID = pickString(m, "senderId", "sender_id")
	msg.RecipientID = pickString(m, "recipientId", "recipient_id")
	if msg.RecipientID == "" {
		// 发送契约里叫 to_user_id，echo 可能原样带回
		msg.RecipientID = pickString(m, "toUserId", "to_user_id")
	}
	msg.Body = pickString(m, "body", "body")

	msg.ConversationID = pickString(m, "conversationId", "conversation_id")
	if msg.ConversationID == "" {
		if msg.SenderID != "" && msg.RecipientID != "" {
			msg.ConversationID = model.ConversationKey(msg.SenderID, msg.RecipientID)
		} else {
			msg.ConversationID = util.NewPlaceholderID()
		}
	}

	if t, ok := pickTime(m, "createdAt", "created_at"); ok {
		msg.CreatedAt = t
	} else {
		msg.CreatedAt = time.Now()
	}

	if v, ok := pick(m, "attachments", "attachments"); ok {
		msg.Attachments = normalizeAttachments(v)
	}

	return msg
}

var attachmentKeys = map[string]string{
	"id":       "id",
	"mimeType": "mime_type",
	"size":     "size",
	"fileName": "file_name",
	"url":      "url",
}

// normalizeAttachments 宽松解码附件列表，缺 ID 或 MIME 类型的条目静默丢弃
func normalizeAttachments(v any) []model.Attachment {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}

	var out []model.Attachment
	for _, item := range list {
		el, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		// snake 先铺底，camel 覆盖
		merged := make(map[string]interface{}, len(attachmentKeys))
		for camel, snake := range attachmentKeys {
			if val, ok := el[snake]; ok {
				merged[camel] = val
			}
			if val, ok := el[camel]; ok {
				merged[camel] = val
			}
		}

		var att model.Attachment
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "json",
			Result:           &att,
			WeaklyTypedInput: true,
		})
		if err != nil || dec.Decode(merged) != nil {
			continue
		}
		if att.ID == "" || att.MimeType == "" {
			continue
		}
		out = append(out, att)
	}
	return out
}

func asMap(raw any) map[string]interface{} {
	switch t := raw.(type) {
	case map[string]interface{}:
		return t
	case json.RawMessage:
		var m map[string]interface{}
		if json.Unmarshal(t, &m) == nil {
			return m
		}
	case []byte:
		var m map[string]interface{}
		if json.Unmarshal(t, &m) == nil {
			return m
		}
	}
	return nil
}

func pick(m map[string]interface{}, camel, snake string) (interface{}, bool) {
	if v, ok := m[camel]; ok && v != nil {
		return v, true
	}
	if v, ok := m[snake]; ok && v != nil {
		return v, true
	}
	return nil, false
}

func pickString(m map[string]interface{}, camel, snake string) string {
	if v, ok := m[camel]; ok {
		if s := asString(v); s != "" {
			return s
		}
	}
	if v, ok := m[snake]; ok {
		return asString(v)
	}
	return ""
}

func pickInt64(m map[string]interface{}, camel, snake string) int64 {
	if v, ok := m[camel]; ok {
		if n, ok := asInt64(v); ok {
			return n
		}
	}
	if v, ok := m[snake]; ok {
		if n, ok := asInt64(v); ok {
			return n
		}
	}
	return 0
}

func pickTime(m map[string]interface{}, camel, snake string) (time.Time, bool) {
	if v, ok := pick(m, camel, snake); ok {
		return asTime(v)
	}
	return time.Time{}, false
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// 数字形态的 ID 按整数展示
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	}
	return ""
}

func asInt64(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case uint64:
		return int64(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, true
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, true
		}
	case float64:
		if t <= 0 {
			return time.Time{}, false
		}
		// 大于 1e12 视为毫秒时间戳
		if t > 1e12 {
			return time.UnixMilli(int64(t)), true
		}
		return time.Unix(int64(t), 0), true
	case time.Time:
		return t, true
	}
	return time.Time{}, false
}
