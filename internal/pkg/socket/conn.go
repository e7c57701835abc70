package socket

import (
	log "log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"Courtyard/internal/api/dto"
	"Courtyard/internal/pkg/consts"
)

// State 推送连接状态
type State string

const (
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
)

// Conn 单条推送连接：断线自动重连，应用事件按类订阅，退订用返回的闭包。
// 重连只管链路，不补发任何应用层请求
type Conn struct {
	conf Conf
	url  string

	mu        sync.Mutex
	ws        *websocket.Conn
	state     State
	closed    bool
	nextSub   int
	msgSubs   map[int]func(raw interface{})
	dlvSubs   map[int]func(ev dto.DeliveredEvent)
	typSubs   map[int]func(ev dto.TypingEvent)
	stateSubs map[int]func(state State)

	sendCh chan []byte
	done   chan struct{}
}

func newConn(conf Conf, url string) *Conn {
	return &Conn{
		conf:      conf,
		url:       url,
		state:     StateReconnecting,
		msgSubs:   make(map[int]func(raw interface{})),
		dlvSubs:   make(map[int]func(ev dto.DeliveredEvent)),
		typSubs:   make(map[int]func(ev dto.TypingEvent)),
		stateSubs: make(map[int]func(state State)),
		sendCh:    make(chan []byte, 16),
		done:      make(chan struct{}),
	}
}

// run 拨号循环：失败按指数退避重试，读循环退出即重连，Teardown 后彻底停
func (s *Conn) run() {
	backoff := s.conf.ReconnectBase
	for {
		select {
		case <-s.done:
			return
		default:
		}

		dialer := websocket.Dialer{HandshakeTimeout: s.conf.DialTimeout}
		ws, _, err := dialer.Dial(s.url, nil)
		if err != nil {
			log.Info("推送连接失败，稍后重试", "backoff", backoff.String(), "err", err)
			select {
			case <-s.done:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.conf.ReconnectMax {
				backoff = s.conf.ReconnectMax
			}
			continue
		}
		backoff = s.conf.ReconnectBase

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			ws.Close()
			return
		}
		s.ws = ws
		s.mu.Unlock()
		s.setState(StateConnected)

		stop := make(chan struct{})
		go s.writeLoop(ws, stop)
		s.readLoop(ws)
		close(stop)
		ws.Close()

		s.mu.Lock()
		s.ws = nil
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		s.setState(StateReconnecting)
	}
}

func (s *Conn) writeLoop(ws *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(s.conf.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.sendCh:
			ws.SetWriteDeadline(time.Now().Add(s.conf.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(s.conf.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stop:
			return
		case <-s.done:
			ws.SetWriteDeadline(time.Now().Add(s.conf.WriteWait))
			_ = ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Conn) readLoop(ws *websocket.Conn) {
	_ = ws.SetReadDeadline(time.Now().Add(s.conf.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.conf.PongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("推送连接断开", "err", err)
			}
			return
		}
		s.dispatch(data)
	}
}

// dispatch 解帧并分发，未知事件与坏负载一律吞掉，消息负载原样交给订阅方归一化
func (s *Conn) dispatch(frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		log.Info("丢弃无法解析的推送帧", "err", err)
		return
	}

	switch env.Event {
	case consts.EventMessage, consts.EventEcho:
		for _, fn := range s.messageSubscribers() {
			fn(env.Data)
		}
	case consts.EventDelivered:
		var ev dto.DeliveredEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return
		}
		for _, fn := range s.deliveredSubscribers() {
			fn(ev)
		}
	case consts.EventTyping:
		var ev dto.TypingEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return
		}
		for _, fn := range s.typingSubscribers() {
			fn(ev)
		}
	}
}

func (s *Conn) messageSubscribers() []func(raw interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(raw interface{}), 0, len(s.msgSubs))
	for _, fn := range s.msgSubs {
		out = append(out, fn)
	}
	return out
}

func (s *Conn) deliveredSubscribers() []func(ev dto.DeliveredEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(ev dto.DeliveredEvent), 0, len(s.dlvSubs))
	for _, fn := range s.dlvSubs {
		out = append(out, fn)
	}
	return out
}

func (s *Conn) typingSubscribers() []func(ev dto.TypingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(ev dto.TypingEvent), 0, len(s.typSubs))
	for _, fn := range s.typSubs {
		out = append(out, fn)
	}
	return out
}

// SubscribeMessages 订阅 chat:message 与 chat:echo 的原始负载，返回退订函数
func (s *Conn) SubscribeMessages(fn func(raw interface{})) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.msgSubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.msgSubs, id)
		s.mu.Unlock()
	}
}

// SubscribeDelivered 订阅对端投递水位事件，返回退订函数
func (s *Conn) SubscribeDelivered(fn func(ev dto.DeliveredEvent)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.dlvSubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.dlvSubs, id)
		s.mu.Unlock()
	}
}

// SubscribeTyping 订阅正在输入事件，返回退订函数
func (s *Conn) SubscribeTyping(fn func(ev dto.TypingEvent)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.typSubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.typSubs, id)
		s.mu.Unlock()
	}
}

// SubscribeState 订阅连接状态变化，返回退订函数
func (s *Conn) SubscribeState(fn func(state State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.stateSubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.stateSubs, id)
		s.mu.Unlock()
	}
}

// Emit 发送一帧应用事件。上行事件是尽力而为的信号，
// 未连接或队列已满时静默丢弃
func (s *Conn) Emit(event string, data interface{}) error {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}
	if s.State() != StateConnected {
		return nil
	}
	select {
	case s.sendCh <- frame:
	default:
	}
	return nil
}

// State 当前连接状态
func (s *Conn) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Conn) setState(next State) {
	s.mu.Lock()
	if s.closed && next != StateDisconnected {
		s.mu.Unlock()
		return
	}
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	subs := make([]func(state State), 0, len(s.stateSubs))
	for _, fn := range s.stateSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}

func (s *Conn) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// close 终止连接：通知状态订阅方后清空全部订阅
func (s *Conn) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ws := s.ws
	s.mu.Unlock()

	close(s.done)
	if ws != nil {
		_ = ws.Close()
	}
	s.setState(StateDisconnected)

	s.mu.Lock()
	s.msgSubs = make(map[int]func(raw interface{}))
	s.dlvSubs = make(map[int]func(ev dto.DeliveredEvent))
	s.typSubs = make(map[int]func(ev dto.TypingEvent))
	s.stateSubs = make(map[int]func(state State))
	s.mu.Unlock()
}
