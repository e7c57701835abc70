package chat

import (
	"context"
	"sync"

	"Courtyard/internal/api/config"
	"Courtyard/internal/api/dto"
	"Courtyard/internal/pkg/socket"
)

// Client 聊天客户端入口：一条共享推送连接加一个 REST 出口。
// 会话页一次只开一个，切换即弃旧
type Client struct {
	cfg     *config.Config
	gateway Gateway
	manager *socket.Manager

	mu      sync.Mutex
	current *Session
}

func NewClient(cfg *config.Config, gateway Gateway, manager *socket.Manager) *Client {
	return &Client{
		cfg:     cfg,
		gateway: gateway,
		manager: manager,
	}
}

// Connect 确保共享推送连接存在并返回它
func (s *Client) Connect() *socket.Conn {
	return s.manager.GetOrCreate(s.cfg.Server.BaseURL, s.cfg.Identity.UserID, s.cfg.Identity.CampusID)
}

// OpenConversation 打开与 peer 的会话页，老会话关闭并丢弃其内存态
func (s *Client) OpenConversation(peerID string) *Session {
	conn := s.Connect()

	sess := newSession(s.gateway, conn, s.cfg, s.cfg.Identity.UserID, peerID)

	s.mu.Lock()
	prev := s.current
	s.current = sess
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	sess.start()
	return sess
}

// Conversations 拉取会话列表
func (s *Client) Conversations(ctx context.Context) ([]dto.ConversationSummary, error) {
	return s.gateway.Conversations(ctx)
}

// ConnState 共享连接状态，给在线横幅用
func (s *Client) ConnState() socket.State {
	if conn := s.manager.Current(); conn != nil {
		return conn.State()
	}
	return socket.StateDisconnected
}

// SubscribeConnState 订阅连接状态变化，返回退订函数
func (s *Client) SubscribeConnState(fn func(state socket.State)) func() {
	return s.Connect().SubscribeState(fn)
}

// Close 关闭当前会话并拆掉共享连接
func (s *Client) Close() {
	s.mu.Lock()
	cur := s.current
	s.current = nil
	s.mu.Unlock()

	if cur != nil {
		cur.Close()
	}
	s.manager.Teardown()
}
