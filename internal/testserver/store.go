package testserver

import (
	"Courtyard/internal/api/dto"
	"Courtyard/internal/model"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StoredMessage 服务端侧落库的一条消息
type StoredMessage struct {
	MessageID      string
	ClientMsgID    string
	Seq            int64
	ConversationID string
	SenderID       string
	RecipientID    string
	Body           string
	CreatedAt      time.Time
}

// SnakeMap 按 REST 历史接口的形态输出
func (m *StoredMessage) SnakeMap() map[string]interface{} {
	return map[string]interface{}{
		"message_id":      m.MessageID,
		"client_msg_id":   m.ClientMsgID,
		"seq":             m.Seq,
		"conversation_id": m.ConversationID,
		"sender_id":       m.SenderID,
		"recipient_id":    m.RecipientID,
		"body":            m.Body,
		"created_at":      m.CreatedAt.Format(time.RFC3339Nano),
	}
}

// CamelMap 按推送帧的形态输出
func (m *StoredMessage) CamelMap() map[string]interface{} {
	return map[string]interface{}{
		"messageId":      m.MessageID,
		"clientMsgId":    m.ClientMsgID,
		"seq":            m.Seq,
		"conversationId": m.ConversationID,
		"senderId":       m.SenderID,
		"recipientId":    m.RecipientID,
		"body":           m.Body,
		"createdAt":      m.CreatedAt.Format(time.RFC3339Nano),
	}
}

// convState 单个会话的服务端状态
type convState struct {
	users     [2]string
	maxSeq    int64
	messages  []*StoredMessage
	delivered map[string]int64
	updatedAt time.Time
}

// Store 内存态会话存储，定序与去重都在锁内完成
type Store struct {
	mu    sync.Mutex
	convs map[string]*convState
}

func NewStore() *Store {
	return &Store{convs: make(map[string]*convState)}
}

func (s *Store) conv(a, b string) *convState {
	key := model.ConversationKey(a, b)
	cs, ok := s.convs[key]
	if !ok {
		lo, hi := a, b
		if hi < lo {
			lo, hi = hi, lo
		}
		cs = &convState{
			users:     [2]string{lo, hi},
			delivered: make(map[string]int64),
		}
		s.convs[key] = cs
	}
	return cs
}

// AppendMessage 原子定序并按 client_msg_id 去重。
// 命中重复时返回已有消息和 true
func (s *Store) AppendMessage(senderID, recipientID, body, clientMsgID string) (*StoredMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.conv(senderID, recipientID)
	if clientMsgID != "" {
		for _, m := range cs.messages {
			if m.ClientMsgID == clientMsgID && m.SenderID == senderID {
				return m, true
			}
		}
	}

	cs.maxSeq++
	msg := &StoredMessage{
		MessageID:      "m-" + uuid.New().String(),
		ClientMsgID:    clientMsgID,
		Seq:            cs.maxSeq,
		ConversationID: model.ConversationKey(senderID, recipientID),
		SenderID:       senderID,
		RecipientID:    recipientID,
		Body:           body,
		CreatedAt:      time.Now(),
	}
	cs.messages = append(cs.messages, msg)
	cs.updatedAt = msg.CreatedAt
	return msg, false
}

// History 返回会话内全部消息，Seq 升序
func (s *Store) History(a, b string) []*StoredMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.convs[model.ConversationKey(a, b)]
	if !ok {
		return nil
	}
	out := make([]*StoredMessage, len(cs.messages))
	copy(out, cs.messages)
	return out
}

// MarkDelivered 推进 userID 在会话里的投递水位。
// 超过 maxSeq 时钳制，低于已有水位时保持不动，返回生效后的水位
func (s *Store) MarkDelivered(userID, peerID string, seq int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.conv(userID, peerID)
	targetSeq := seq
	if targetSeq > cs.maxSeq {
		targetSeq = cs.maxSeq
	}
	if targetSeq > cs.delivered[userID] {
		cs.delivered[userID] = targetSeq
	}
	return cs.delivered[userID]
}

// Summaries 生成 userID 参与的所有会话摘要
func (s *Store) Summaries(userID string) []dto.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]dto.ConversationSummary, 0)
	for key, cs := range s.convs {
		if cs.users[0] != userID && cs.users[1] != userID {
			continue
		}
		peerID := cs.users[0]
		if peerID == userID {
			peerID = cs.users[1]
		}

		d := dto.ConversationSummary{
			ConversationID: key,
			PeerID:         peerID,
			LastSeq:        cs.maxSeq,
			DeliveredSeq:   cs.delivered[userID],
			UnreadCount:    cs.maxSeq - cs.delivered[userID],
			UpdatedAt:      cs.updatedAt,
		}
		if n := len(cs.messages); n > 0 {
			last := cs.messages[n-1]
			d.LastBody = last.Body
			d.LastSenderID = last.SenderID
		}
		res = append(res, d)
	}
	return res
}
