package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	Agent      AgentConfig
	Settings   SettingsConfig
	Transcript TranscriptConfig
	Capture    CaptureConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Addr string `env:"-"`
}

// AgentConfig 描述远端语音智能体连接。
type AgentConfig struct {
	ID               string        `env:"AGENT_ID" envDefault:"agent_01jwm20k96f1as3qhtcbp2zc7a"`
	APIKey           string        `env:"ELEVENLABS_API_KEY"`
	URL              string        `env:"ELEVENLABS_CONVAI_URL" envDefault:"wss://api.elevenlabs.io/v1/convai/conversation"`
	HandshakeTimeout time.Duration `env:"AGENT_HANDSHAKE_TIMEOUT" envDefault:"15s"`
}

// SettingsConfig 描述配置持久化。
type SettingsConfig struct {
	Store  string `env:"SETTINGS_STORE" envDefault:"sqlite"`
	DBPath string `env:"SETTINGS_DB_PATH" envDefault:"os1.db"`
	Key    string `env:"SETTINGS_KEY" envDefault:"aiConfig"`
}

// Settings store backends.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// TranscriptConfig 记录保留条数。
type TranscriptConfig struct {
	Limit int `env:"TRANSCRIPT_LIMIT" envDefault:"500"`
}

// CaptureConfig 描述麦克风获取方式。Device 为空时由浏览器代理权限。
type CaptureConfig struct {
	Timeout time.Duration `env:"CAPTURE_TIMEOUT" envDefault:"30s"`
	Device  string        `env:"CAPTURE_DEVICE"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}

	server, err := loadServerConfig(cfg.Server)
	if err != nil {
		return nil, err
	}
	cfg.Server = server

	switch cfg.Settings.Store = strings.ToLower(strings.TrimSpace(cfg.Settings.Store)); cfg.Settings.Store {
	case StoreSQLite, StoreMemory:
	default:
		return nil, fmt.Errorf("invalid SETTINGS_STORE value: %q", cfg.Settings.Store)
	}

	if cfg.Transcript.Limit < 1 {
		return nil, fmt.Errorf("invalid TRANSCRIPT_LIMIT value: %d", cfg.Transcript.Limit)
	}

	cfg.Agent.ID = strings.TrimSpace(cfg.Agent.ID)
	if cfg.Agent.ID == "" {
		return nil, fmt.Errorf("AGENT_ID must not be empty")
	}

	return &cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(server ServerConfig) (ServerConfig, error) {
	port := strings.TrimSpace(server.Port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Port: port, Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Port: port, Addr: ":" + port}, nil
}
