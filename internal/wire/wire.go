package wire

import (
	"Courtyard/internal/api/config"
	"Courtyard/internal/chat"
	"Courtyard/internal/pkg/rest"
	"Courtyard/internal/pkg/socket"
	"Courtyard/internal/testserver"
	"time"
)

// ClientContainer 封装了客户端运行所需的所有顶级组件
type ClientContainer struct {
	Config  *config.Config
	Gateway chat.Gateway
	Manager *socket.Manager
	Client  *chat.Client
}

func BuildClient(cfg *config.Config) (*ClientContainer, error) {
	if cfg.Server.BaseURL == "" {
		return nil, chat.ErrServerURLMissing
	}

	gateway := rest.New(cfg)

	manager := socket.NewManager(socket.Conf{
		DialTimeout:   time.Duration(cfg.Socket.DialTimeout) * time.Second,
		PingInterval:  time.Duration(cfg.Socket.PingInterval) * time.Second,
		PongWait:      time.Duration(cfg.Socket.PongWait) * time.Second,
		ReconnectBase: time.Duration(cfg.Socket.ReconnectBaseMS) * time.Millisecond,
		ReconnectMax:  time.Duration(cfg.Socket.ReconnectMaxMS) * time.Millisecond,
	})

	client := chat.NewClient(cfg, gateway, manager)

	return &ClientContainer{
		Config:  cfg,
		Gateway: gateway,
		Manager: manager,
		Client:  client,
	}, nil
}

// BuildDevServer 组装内存联调后端
func BuildDevServer() *testserver.Server {
	return testserver.New()
}
