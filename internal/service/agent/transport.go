package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zhouzirui/os1/backend/internal/service/session"
)

// DefaultURL ElevenLabs 会话式智能体的 WebSocket 端点。
const DefaultURL = "wss://api.elevenlabs.io/v1/convai/conversation"

// Options 远端连接参数。
type Options struct {
	URL              string        // 端点，空时使用 DefaultURL
	APIKey           string        // xi-api-key，公开智能体可为空
	HandshakeTimeout time.Duration // 握手超时
	WriteTimeout     time.Duration // 单次写超时
	PingInterval     time.Duration // 协议层 ping 间隔
	EventBuffer      int           // 事件通道容量
}

// DefaultOptions 默认连接参数。
func DefaultOptions() Options {
	return Options{
		URL:              DefaultURL,
		HandshakeTimeout: 15 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     20 * time.Second,
		EventBuffer:      128,
	}
}

// Transport 通过 WebSocket 打开 ElevenLabs 会话。
type Transport struct {
	opts   Options
	dialer *websocket.Dialer
}

// NewTransport 创建传输层，未设置的字段取默认值。
func NewTransport(opts Options) *Transport {
	def := DefaultOptions()
	if strings.TrimSpace(opts.URL) == "" {
		opts.URL = def.URL
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = def.HandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = def.PingInterval
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = def.EventBuffer
	}

	return &Transport{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
	}
}

// Open dials the agent and sends the initiation message. ctx bounds the
// handshake only; the returned connection outlives it.
func (t *Transport) Open(ctx context.Context, req session.OpenRequest) (session.Conn, error) {
	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		return nil, errors.New("agent id is required")
	}

	wsURL, err := buildURL(t.opts.URL, agentID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if key := strings.TrimSpace(t.opts.APIKey); key != "" {
		header.Set("xi-api-key", key)
	}

	ws, resp, err := t.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to agent (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to agent: %w", err)
	}

	c := newConn(uuid.NewString(), ws, t.opts)
	if err := c.writeJSON(initiationMessage(req.SystemPrompt)); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("failed to send conversation initiation: %w", err)
	}

	log.Printf("[agent] connection %s opened for agent %s", c.id, agentID)
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func buildURL(base, agentID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid agent url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("agent_id", agentID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type initiation struct {
	Type     string    `json:"type"`
	Override *override `json:"conversation_config_override,omitempty"`
}

type override struct {
	Agent struct {
		Prompt struct {
			Prompt string `json:"prompt"`
		} `json:"prompt"`
	} `json:"agent"`
}

// initiationMessage 仅在提示词非空时携带覆盖配置。
func initiationMessage(prompt string) initiation {
	msg := initiation{Type: "conversation_initiation_client_data"}
	if prompt != "" {
		msg.Override = &override{}
		msg.Override.Agent.Prompt.Prompt = prompt
	}
	return msg
}
