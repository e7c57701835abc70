package socket

import (
	log "log/slog"
	"net/url"
	"sync"
	"time"

	"Courtyard/internal/pkg/consts"
	"Courtyard/internal/pkg/util"
)

// Conf 推送通道参数
type Conf struct {
	DialTimeout   time.Duration
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

func (c Conf) withDefaults() Conf {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 5 * time.Second
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = 500 * time.Millisecond
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 15 * time.Second
	}
	return c
}

// Manager 推送连接管理器：进程内最多一条共享连接。
// 已有连接时直接复用，即便请求方给了另一套身份；换身份必须先 Teardown
type Manager struct {
	mu     sync.Mutex
	conf   Conf
	conn   *Conn
	userID string
}

func NewManager(conf Conf) *Manager {
	return &Manager{conf: conf.withDefaults()}
}

// GetOrCreate 获取共享连接，没有则按身份握手新建。
// 身份随握手走，不随每条消息走
func (s *Manager) GetOrCreate(baseURL, userID, campusID string) *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil && !s.conn.isClosed() {
		if userID != s.userID {
			log.Warn("已有推送连接，忽略新身份", "current", s.userID, "requested", userID)
		}
		return s.conn
	}

	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("campus_id", campusID)
	endpoint := util.WebsocketURL(baseURL) + consts.SocketPath + "?" + q.Encode()

	conn := newConn(s.conf, endpoint)
	go conn.run()
	s.conn = conn
	s.userID = userID
	return conn
}

// Teardown 关闭并清除共享连接
func (s *Manager) Teardown() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.close()
	}
}

// Current 返回现有连接，没有则为 nil
func (s *Manager) Current() *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
