package testserver

import (
	"Courtyard/internal/api/dto"
	"Courtyard/internal/pkg/consts"
	"Courtyard/internal/pkg/socket"
	log "log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = (hubPongWait * 9) / 10
)

// wsClient 一条已登记的用户连接
type wsClient struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *wsClient) stop() {
	c.once.Do(func() { close(c.done) })
}

// Hub 用户连接登记表。同一用户只保留一条连接，新连接顶掉旧的
type Hub struct {
	mu      sync.Mutex
	clients map[string]*wsClient
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*wsClient)}
}

// Push 向指定用户推送一帧事件，未在线或队列已满时丢弃
func (s *Hub) Push(userID, event string, data interface{}) {
	frame, err := socket.EncodeFrame(event, data)
	if err != nil {
		log.Error("推送帧编码失败", "event", event, "err", err)
		return
	}

	s.mu.Lock()
	c := s.clients[userID]
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case c.send <- frame:
	default:
		log.Warn("推送队列已满，丢弃一帧", "userID", userID, "event", event)
	}
}

// Serve 接管一条已升级的连接，阻塞直到对端断开。
// onTyping 在收到上行 typing 信号时回调
func (s *Hub) Serve(conn *websocket.Conn, userID string, onTyping func(fromUserID, peerID string)) {
	c := &wsClient{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, 32),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if prev := s.clients[userID]; prev != nil {
		prev.stop()
		_ = prev.conn.Close()
	}
	s.clients[userID] = c
	s.mu.Unlock()

	log.Info("用户 WS 连接已建立", "userID", userID)

	go s.writePump(c)
	s.readPump(c, onTyping)

	s.mu.Lock()
	if s.clients[userID] == c {
		delete(s.clients, userID)
	}
	s.mu.Unlock()

	c.stop()
	_ = conn.Close()
	log.Info("用户 WS 连接已断开", "userID", userID)
}

// readPump 监听上行帧，目前只识别 typing 信号
func (s *Hub) readPump(c *wsClient, onTyping func(fromUserID, peerID string)) {
	_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WS 读取失败", "userID", c.userID, "err", err)
			}
			return
		}

		var frame socket.Envelope
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Warn("上行帧解析失败", "userID", c.userID, "err", err)
			continue
		}
		if frame.Event != consts.EmitTyping || onTyping == nil {
			continue
		}
		var req dto.TypingReq
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.PeerID == "" {
			continue
		}
		onTyping(c.userID, req.PeerID)
	}
}

// writePump 下行推送与心跳
func (s *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(hubPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error("WS 推送失败", "userID", c.userID, "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
