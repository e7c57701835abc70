package config

// Config 配置主体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Socket    SocketConfig    `mapstructure:"socket"`
	Logstash  LogstashConfig  `mapstructure:"logstash"`
	DevServer DevServerConfig `mapstructure:"dev_server"`
}

// ServerConfig 平台后端入口
type ServerConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	RequestTimeout int    `mapstructure:"request_timeout"` // 秒
}

// IdentityConfig 当前登录身份，由外部登录流程产出，这里按不透明值消费
type IdentityConfig struct {
	UserID   string `mapstructure:"user_id"`
	CampusID string `mapstructure:"campus_id"`
}

// ChatConfig 聊天行为参数
type ChatConfig struct {
	SendTimeout      int `mapstructure:"send_timeout"`       // 秒
	HistoryTimeout   int `mapstructure:"history_timeout"`    // 秒
	AckTimeout       int `mapstructure:"ack_timeout"`        // 秒
	TypingCooldownMS int `mapstructure:"typing_cooldown_ms"` // 打字信号节流窗口
	TypingExpiryMS   int `mapstructure:"typing_expiry_ms"`   // 对端打字显示过期
}

// SocketConfig 推送通道参数
type SocketConfig struct {
	DialTimeout     int `mapstructure:"dial_timeout"`  // 秒
	PingInterval    int `mapstructure:"ping_interval"` // 秒
	PongWait        int `mapstructure:"pong_wait"`     // 秒
	ReconnectBaseMS int `mapstructure:"reconnect_base_ms"`
	ReconnectMaxMS  int `mapstructure:"reconnect_max_ms"`
}

// LogstashConfig 远程日志上报，Address 为空则只写 stdout
type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

// DevServerConfig 内置联调后端
type DevServerConfig struct {
	Addr string `mapstructure:"addr"`
}
