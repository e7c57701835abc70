package chat

import (
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"Courtyard/internal/api/config"
	"Courtyard/internal/api/dto"
	"Courtyard/internal/model"
	"Courtyard/internal/pkg/consts"
	"Courtyard/internal/pkg/logger"
)

// SessionState 会话页状态机
type SessionState string

const (
	SessionIdle    SessionState = "idle"
	SessionLoading SessionState = "loading"
	SessionActive  SessionState = "active"
)

// Session 单个会话页的控制器：打开即拉历史、订阅推送、驱动投递回执。
// 切换会话是 Close 旧的再开新的，内存态不跨会话保留
type Session struct {
	selfID string
	peerID string
	convID string

	gateway   Gateway
	transport Transport
	store     *Store
	sequencer *DeliverySequencer
	outbox    *Outbox

	historyTimeout time.Duration
	typingExpiry   time.Duration
	typingLimiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       SessionState
	peerTyping  bool
	typingTimer *time.Timer
	unsubs      []func()
	onUpdate    func()
}

func newSession(gateway Gateway, transport Transport, cfg *config.Config, selfID, peerID string) *Session {
	convID := model.ConversationKey(selfID, peerID)
	chatCfg := cfg.Chat

	s := &Session{
		selfID:         selfID,
		peerID:         peerID,
		convID:         convID,
		gateway:        gateway,
		transport:      transport,
		store:          NewStore(),
		historyTimeout: secondsOr(chatCfg.HistoryTimeout, 15*time.Second),
		typingExpiry:   millisOr(chatCfg.TypingExpiryMS, 2500*time.Millisecond),
		typingLimiter:  rate.NewLimiter(rate.Every(millisOr(chatCfg.TypingCooldownMS, 1200*time.Millisecond)), 1),
		state:          SessionIdle,
	}
	s.sequencer = NewDeliverySequencer(gateway, peerID, secondsOr(chatCfg.AckTimeout, 10*time.Second))
	s.outbox = NewOutbox(gateway, s.store, selfID, peerID, secondsOr(chatCfg.SendTimeout, 10*time.Second))
	s.ctx, s.cancel = context.WithCancel(logger.WithConv(context.Background(), convID))
	return s
}

// start 进入 Loading：先挂订阅再拉历史，推送不等历史
func (s *Session) start() {
	s.store.OnChange(s.afterChange)

	s.mu.Lock()
	s.unsubs = append(s.unsubs,
		s.transport.SubscribeMessages(s.onRaw),
		s.transport.SubscribeDelivered(s.onDelivered),
		s.transport.SubscribeTyping(s.onTyping),
	)
	s.state = SessionLoading
	s.mu.Unlock()

	go s.loadHistory()
}

func (s *Session) loadHistory() {
	ctx, cancel := context.WithTimeout(s.ctx, s.historyTimeout)
	defer cancel()

	items, err := s.gateway.History(ctx, s.peerID)
	if err != nil {
		if errors.Is(err, context.Canceled) || s.ctx.Err() != nil {
			// 切会话导致的中止，不算失败
			log.Info("历史拉取已中止", "conv", s.convID)
			return
		}
		log.Warn("历史消息拉取失败，先给空列表", "conv", s.convID, "err", err)
		s.setState(SessionActive)
		return
	}
	if s.ctx.Err() != nil {
		return
	}

	batch := make([]model.Message, 0, len(items))
	for _, item := range items {
		batch = append(batch, Normalize(item))
	}
	s.store.Merge(batch...)
	s.setState(SessionActive)
}

// afterChange 任何入库变更后驱动回执，并通知渲染方
func (s *Session) afterChange() {
	if target := s.store.PeerMaxSeq(s.selfID); target > 0 {
		s.sequencer.Acknowledge(target)
	}
	s.notify()
}

// onRaw 推送来的消息（含自己消息的 echo），归一化后走统一合并入口
func (s *Session) onRaw(raw interface{}) {
	msg := Normalize(raw)
	if msg.ConversationID != s.convID {
		// 共享连接上会出现别的会话的消息，本页不管
		return
	}
	s.store.Merge(msg)
	if msg.SenderID == s.selfID && msg.ClientMsgID != "" {
		// 自己消息的 echo 即服务端确认，投递状态直接到位；
		// 只升不降，迟到的 HTTP 结果改写不了它
		s.store.SetStatus(msg.ClientMsgID, model.StatusDelivered, "")
	}
}

func (s *Session) onDelivered(ev dto.DeliveredEvent) {
	if ev.ConversationID != "" && ev.ConversationID != s.convID {
		return
	}
	if ev.ConversationID == "" && ev.PeerID != s.peerID {
		return
	}
	s.store.MarkDeliveredThrough(s.selfID, ev.DeliveredSeq)
}

func (s *Session) onTyping(ev dto.TypingEvent) {
	if ev.FromUserID != s.peerID {
		return
	}

	s.mu.Lock()
	s.peerTyping = true
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(s.typingExpiry, s.clearTyping)
	s.mu.Unlock()

	s.notify()
}

func (s *Session) clearTyping() {
	s.mu.Lock()
	changed := s.peerTyping
	s.peerTyping = false
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// Send 乐观发送一条文本消息
func (s *Session) Send(body string) model.Message {
	return s.outbox.Send(body)
}

// EmitTyping 上行打字信号，节流窗口内的重复调用直接吞掉
func (s *Session) EmitTyping() {
	if !s.typingLimiter.Allow() {
		return
	}
	_ = s.transport.Emit(consts.EmitTyping, dto.TypingReq{PeerID: s.peerID})
}

// Messages 当前渲染列表
func (s *Session) Messages() []model.DisplayMessage {
	return s.store.Snapshot(s.selfID)
}

// PeerTyping 对方是否正在输入
func (s *Session) PeerTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerTyping
}

// Unread 对方消息里尚未确认投递的条数估计
func (s *Session) Unread() int64 {
	peerMax := s.store.PeerMaxSeq(s.selfID)
	acked := s.sequencer.HighestAcked()
	if peerMax <= acked {
		return 0
	}
	return peerMax - acked
}

// State 当前会话页状态
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PeerID 会话对端
func (s *Session) PeerID() string {
	return s.peerID
}

// ConversationID 会话标识
func (s *Session) ConversationID() string {
	return s.convID
}

// OnUpdate 注册渲染回调，消息、状态、打字标志变化时触发
func (s *Session) OnUpdate(fn func()) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// Close 关闭会话：中止在途历史请求并退订推送事件
func (s *Session) Close() {
	s.cancel()

	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.state = SessionIdle
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

func (s *Session) setState(next SessionState) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	s.notify()
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func secondsOr(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}

func millisOr(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Millisecond
}
