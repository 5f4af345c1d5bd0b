package capture

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultClientTimeout 等待浏览器应答权限请求的默认时长。
const DefaultClientTimeout = 30 * time.Second

// Message types exchanged with the attached client.
const (
	MessageRequest = "capture_request"
	MessageRelease = "capture_release"
)

// Message 发送给浏览器端的权限请求/释放通知。
type Message struct {
	Type        string       `json:"type"`
	ID          string       `json:"id"`
	Constraints *Constraints `json:"constraints,omitempty"`
}

// Reply 浏览器对 capture_request 的应答，ErrorName 为 getUserMedia 抛出的 DOMException 名称。
type Reply struct {
	ID        string `json:"id"`
	Granted   bool   `json:"granted"`
	ErrorName string `json:"errorName,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Sender pushes a capture message to the attached client.
type Sender func(Message) error

// ClientProvider 通过已连接的浏览器界面代理麦克风权限。
// 同一时刻只接受一个客户端，新客户端会替换旧客户端。
type ClientProvider struct {
	timeout time.Duration

	mu      sync.Mutex
	send    Sender
	token   int
	pending map[string]chan Reply
}

// NewClientProvider creates a provider with the given reply timeout.
func NewClientProvider(timeout time.Duration) *ClientProvider {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	return &ClientProvider{
		timeout: timeout,
		pending: make(map[string]chan Reply),
	}
}

// Attach registers the client able to answer permission requests.
// The returned detach fails any request still waiting on this client.
func (p *ClientProvider) Attach(send Sender) (detach func()) {
	p.mu.Lock()
	p.token++
	token := p.token
	p.send = send
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.token != token {
			return
		}
		p.send = nil
		for id, ch := range p.pending {
			select {
			case ch <- Reply{ID: id, ErrorName: "Disconnected", Message: "capture client disconnected"}:
			default:
			}
		}
	}
}

// Attached reports whether a client is currently registered.
func (p *ClientProvider) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.send != nil
}

// Resolve delivers a client reply to the waiting request. Unknown ids are ignored.
func (p *ClientProvider) Resolve(reply Reply) bool {
	p.mu.Lock()
	ch, ok := p.pending[reply.ID]
	p.mu.Unlock()
	if !ok {
		log.Printf("[capture] reply for unknown request %s ignored", reply.ID)
		return false
	}

	select {
	case ch <- reply:
		return true
	default:
		return false
	}
}

// RequestCapture asks the attached client for microphone access and waits for its answer.
func (p *ClientProvider) RequestCapture(ctx context.Context, constraints Constraints) (Handle, error) {
	id := uuid.NewString()
	replies := make(chan Reply, 1)

	p.mu.Lock()
	send := p.send
	if send == nil {
		p.mu.Unlock()
		return nil, deviceError("no capture client connected")
	}
	p.pending[id] = replies
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	if err := send(Message{Type: MessageRequest, ID: id, Constraints: &constraints}); err != nil {
		return nil, deviceError("send capture request: " + err.Error())
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, deviceError("timed out waiting for capture permission")
	case reply := <-replies:
		if reply.Granted {
			return &clientHandle{id: id, release: func() error {
				return send(Message{Type: MessageRelease, ID: id})
			}}, nil
		}
		return nil, classifyReply(reply)
	}
}

func classifyReply(reply Reply) error {
	reason := reply.Message
	if reason == "" {
		reason = reply.ErrorName
	}
	switch reply.ErrorName {
	case "NotAllowedError", "SecurityError", "PermissionDeniedError", "":
		return denied(reason)
	default:
		return deviceError(reason)
	}
}

type clientHandle struct {
	id      string
	release func() error
	once    sync.Once
	err     error
}

func (h *clientHandle) ID() string { return h.id }

func (h *clientHandle) Close() error {
	h.once.Do(func() { h.err = h.release() })
	return h.err
}
