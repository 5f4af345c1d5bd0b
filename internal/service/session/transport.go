package session

import (
	"context"

	"github.com/zhouzirui/os1/backend/internal/model/agent"
	"github.com/zhouzirui/os1/backend/internal/model/transcript"
)

// OpenRequest 建立远端会话所需参数。SystemPrompt 为空时不下发。
type OpenRequest struct {
	AgentID      string
	SystemPrompt string
}

// Conn is one live remote session. Events delivers remote events in arrival
// order and is closed once the connection ends. Close must not wait for
// Events to be drained.
type Conn interface {
	ID() string
	Events() <-chan agent.Event
	Close(ctx context.Context) error
}

// Transport opens remote agent sessions.
type Transport interface {
	Open(ctx context.Context, req OpenRequest) (Conn, error)
}

// Sink 接收规范化后的记录。实现不得回调 façade。
type Sink interface {
	Append(ev transcript.Event)
	Clear()
}
