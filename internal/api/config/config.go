package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig 加载配置并填充到 Cfg：configs/config.yaml 叠加 COURTYARD_* 环境变量，
// 文件缺失时仅用默认值与环境变量
func LoadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")

	viper.SetEnvPrefix("courtyard")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	applyDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg

	return nil
}

// Default 内置默认配置，测试与未装载场景直接使用
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:        "http://127.0.0.1:8080",
			RequestTimeout: 10,
		},
		Chat: ChatConfig{
			SendTimeout:      10,
			HistoryTimeout:   15,
			AckTimeout:       10,
			TypingCooldownMS: 1200,
			TypingExpiryMS:   2500,
		},
		Socket: SocketConfig{
			DialTimeout:     10,
			PingInterval:    25,
			PongWait:        60,
			ReconnectBaseMS: 500,
			ReconnectMaxMS:  15000,
		},
		Logstash: LogstashConfig{
			Index: "courtyard-chat",
		},
		DevServer: DevServerConfig{
			Addr: ":8080",
		},
	}
}

func applyDefaults() {
	d := Default()
	viper.SetDefault("server.base_url", d.Server.BaseURL)
	viper.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	viper.SetDefault("chat.send_timeout", d.Chat.SendTimeout)
	viper.SetDefault("chat.history_timeout", d.Chat.HistoryTimeout)
	viper.SetDefault("chat.ack_timeout", d.Chat.AckTimeout)
	viper.SetDefault("chat.typing_cooldown_ms", d.Chat.TypingCooldownMS)
	viper.SetDefault("chat.typing_expiry_ms", d.Chat.TypingExpiryMS)
	viper.SetDefault("socket.dial_timeout", d.Socket.DialTimeout)
	viper.SetDefault("socket.ping_interval", d.Socket.PingInterval)
	viper.SetDefault("socket.pong_wait", d.Socket.PongWait)
	viper.SetDefault("socket.reconnect_base_ms", d.Socket.ReconnectBaseMS)
	viper.SetDefault("socket.reconnect_max_ms", d.Socket.ReconnectMaxMS)
	viper.SetDefault("logstash.index", d.Logstash.Index)
	viper.SetDefault("dev_server.addr", d.DevServer.Addr)
}
