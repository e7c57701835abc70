package chat

import (
	"context"
	"errors"
	log "log/slog"
	"time"

	"Courtyard/internal/api/dto"
	"Courtyard/internal/model"
	"Courtyard/internal/pkg/util"
)

// Outbox 乐观发送：消息先落本地仓库立即上屏，HTTP 结果只改状态，
// 服务端 echo 负责把临时字段对账成权威值
type Outbox struct {
	gateway Gateway
	store   *Store
	selfID  string
	peerID  string
	convID  string
	timeout time.Duration
}

func NewOutbox(gateway Gateway, store *Store, selfID, peerID string, timeout time.Duration) *Outbox {
	return &Outbox{
		gateway: gateway,
		store:   store,
		selfID:  selfID,
		peerID:  peerID,
		convID:  model.ConversationKey(selfID, peerID),
		timeout: timeout,
	}
}

// Send 发送文本消息，立即返回乐观形态，不等网络结果。
// 断线状态下照样入库发起请求，REST 通道和推送通道互不牵连
func (s *Outbox) Send(body string) model.Message {
	msg := model.Message{
		ClientMsgID:    util.NewClientMsgID(),
		Seq:            s.store.MaxSeq() + 1,
		ConversationID: s.convID,
		SenderID:       s.selfID,
		RecipientID:    s.peerID,
		Body:           body,
		CreatedAt:      time.Now(),
	}
	// 服务端 ID 未知，先用客户端 ID 占位，echo 到达后由 Merge 替换
	msg.MessageID = msg.ClientMsgID

	s.store.SetStatus(msg.ClientMsgID, model.StatusSending, "")
	s.store.Merge(msg)

	go s.post(msg)
	return msg
}

func (s *Outbox) post(msg model.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.gateway.SendMessage(ctx, dto.SendMessageReq{
		ToUserID:    s.peerID,
		Body:        msg.Body,
		ClientMsgID: msg.ClientMsgID,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Warn("消息发送失败", "conv", s.convID, "client_msg_id", msg.ClientMsgID, "err", err)
		s.store.SetStatus(msg.ClientMsgID, model.StatusError, sendErrorText(err))
		return
	}

	// 只升不降：echo 先到的话这里不会把 delivered 打回 sent
	s.store.SetStatus(msg.ClientMsgID, model.StatusSent, "")
}

func sendErrorText(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrSendTimeout.Error()
	}
	return ErrSendFailed.Error()
}
