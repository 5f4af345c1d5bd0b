package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zhouzirui/os1/backend/internal/model/agent"
	"github.com/zhouzirui/os1/backend/internal/model/settings"
	"github.com/zhouzirui/os1/backend/internal/model/transcript"
	"github.com/zhouzirui/os1/backend/internal/service/capture"
)

const closeTimeout = 5 * time.Second

// Status 是会话状态的只读快照。
type Status struct {
	State          State      `json:"state"`
	Mode           string     `json:"mode,omitempty"`
	ConversationID string     `json:"conversationId,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	Starting       bool       `json:"starting"`
	LastError      string     `json:"lastError,omitempty"`
}

// Facade owns at most one remote agent session and turns its events into
// transcript lines. All state transitions and event handling are serialized
// on mu; the sink and the state listener are invoked with mu held.
type Facade struct {
	transport   Transport
	capture     capture.Provider
	sink        Sink
	agentID     string
	constraints capture.Constraints
	now         func() time.Time
	listener    StateListener

	mu             sync.Mutex
	state          State
	mode           string
	gen            uint64
	conn           Conn
	handle         capture.Handle
	conversationID string
	startedAt      time.Time
	lastErr        error

	starting       bool
	startCancelled bool
	startDone      chan struct{}
	cancelStart    context.CancelFunc
	stopping       bool
}

// Option customises a Facade.
type Option func(*Facade)

// WithStateListener registers a transition observer.
func WithStateListener(l StateListener) Option {
	return func(f *Facade) { f.listener = l }
}

// WithClock overrides the timestamp source for transcript lines.
func WithClock(now func() time.Time) Option {
	return func(f *Facade) {
		if now != nil {
			f.now = now
		}
	}
}

// WithConstraints overrides the capture constraints.
func WithConstraints(c capture.Constraints) Option {
	return func(f *Facade) { f.constraints = c }
}

// New 创建会话门面。agentID 为部署固定的远端智能体标识。
func New(transport Transport, provider capture.Provider, sink Sink, agentID string, opts ...Option) *Facade {
	f := &Facade{
		transport:   transport,
		capture:     provider,
		sink:        sink,
		agentID:     agentID,
		constraints: capture.DefaultConstraints(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Status returns the current lifecycle snapshot.
func (f *Facade) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := Status{
		State:          f.state,
		Mode:           f.mode,
		ConversationID: f.conversationID,
		Starting:       f.starting,
	}
	if !f.startedAt.IsZero() {
		started := f.startedAt
		st.StartedAt = &started
	}
	if f.lastErr != nil {
		st.LastError = f.lastErr.Error()
	}
	return st
}

// State returns the current lifecycle state.
func (f *Facade) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Live reports whether a session exists or is being started.
func (f *Facade) Live() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state != Idle || f.starting
}

// Start 仅在 Idle 且无进行中的生命周期调用时有效：先申请麦克风权限，再建立远端会话。
// 连接确认通过事件流异步到达。
func (f *Facade) Start(ctx context.Context, cfg settings.SessionConfig) error {
	f.mu.Lock()
	if f.state != Idle || f.starting || f.stopping {
		f.mu.Unlock()
		return ErrSessionBusy
	}
	startCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	f.starting = true
	f.startCancelled = false
	f.startDone = done
	f.cancelStart = cancel
	f.lastErr = nil
	f.mu.Unlock()

	defer func() {
		cancel()
		f.mu.Lock()
		f.starting = false
		f.cancelStart = nil
		f.mu.Unlock()
		close(done)
	}()

	f.system("Requesting microphone permission...")
	handle, err := f.capture.RequestCapture(startCtx, f.constraints)

	f.mu.Lock()
	if f.startCancelled {
		f.handle = handle
		f.mu.Unlock()
		return ErrStartCancelled
	}
	if err != nil {
		kind := DeviceError
		if errors.Is(err, capture.ErrPermissionDenied) {
			kind = PermissionDenied
		}
		failure := &Error{Kind: kind, Err: err}
		f.failLocked(failure, "Startup failed: ")
		f.mu.Unlock()
		return failure
	}
	f.handle = handle
	f.gen++
	gen := f.gen
	f.emitLocked(transcript.System, "Microphone access granted")
	f.setStateLocked(Connecting)
	f.emitLocked(transcript.System, "Connecting to ElevenLabs agent...")
	prompt := strings.TrimSpace(cfg.KnowledgeSnippet)
	if prompt != "" {
		f.emitLocked(transcript.System, fmt.Sprintf("Using knowledge base (%d characters)", utf8.RuneCountInString(prompt)))
	}
	f.mu.Unlock()

	log.Printf("[session] opening remote session agent=%s prompt=%d chars", f.agentID, utf8.RuneCountInString(prompt))
	conn, err := f.transport.Open(startCtx, OpenRequest{AgentID: f.agentID, SystemPrompt: prompt})

	f.mu.Lock()
	if f.startCancelled {
		// 迟到的连接直接交给 Stop 拆除，不进入 Active。
		f.conn = conn
		f.mu.Unlock()
		return ErrStartCancelled
	}
	if err != nil {
		failure := &Error{Kind: RemoteConnectError, Err: err}
		conn, handle := f.failLocked(failure, "Startup failed: ")
		f.mu.Unlock()
		release(conn, handle)
		return failure
	}
	f.conn = conn
	f.mu.Unlock()

	log.Printf("[session] remote session %s opened, awaiting confirmation", conn.ID())
	go f.pump(gen, conn)
	return nil
}

// Stop 在 Connecting、Active、Errored 或启动进行中时有效，且总是回到 Idle，
// 即使远端关闭失败。
func (f *Facade) Stop(ctx context.Context) error {
	f.mu.Lock()
	if f.stopping {
		f.mu.Unlock()
		return ErrSessionBusy
	}
	if f.state == Idle && !f.starting {
		f.mu.Unlock()
		return ErrNotActive
	}
	f.stopping = true
	var waitStart chan struct{}
	if f.starting {
		f.startCancelled = true
		f.cancelStart()
		waitStart = f.startDone
	}
	f.emitLocked(transcript.System, "Stopping conversation...")
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.stopping = false
		f.mu.Unlock()
	}()

	if waitStart != nil {
		<-waitStart
	}

	f.mu.Lock()
	conn, handle := f.detachLocked()
	if f.state != Disconnecting {
		f.setStateLocked(Disconnecting)
	}
	f.mu.Unlock()

	var closeErr error
	if conn != nil {
		closeCtx, cancel := context.WithTimeout(ctx, closeTimeout)
		closeErr = conn.Close(closeCtx)
		cancel()
	}
	if handle != nil {
		if err := handle.Close(); err != nil {
			log.Printf("[session] release capture handle failed: %v", err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.setStateLocked(Idle)
	if closeErr != nil {
		failure := &Error{Kind: RemoteDisconnectError, Err: closeErr}
		f.lastErr = failure
		log.Printf("[session] %v", failure)
		f.emitLocked(transcript.System, "Error stopping: "+message(failure))
		return failure
	}
	f.emitLocked(transcript.System, "Conversation stopped successfully")
	return nil
}

// Toggle 停止正在进行的会话，否则启动新会话。
func (f *Facade) Toggle(ctx context.Context, cfg settings.SessionConfig) error {
	if f.Live() {
		return f.Stop(ctx)
	}
	return f.Start(ctx, cfg)
}

// Shutdown stops any live session; used on process exit.
func (f *Facade) Shutdown(ctx context.Context) {
	if !f.Live() {
		return
	}
	if err := f.Stop(ctx); err != nil && !errors.Is(err, ErrNotActive) {
		log.Printf("[session] shutdown stop: %v", err)
	}
}

// pump drains one connection's events in arrival order.
func (f *Facade) pump(gen uint64, conn Conn) {
	for ev := range conn.Events() {
		if !f.dispatch(gen, ev) {
			return
		}
	}
	f.dispatch(gen, agent.Disconnected{Reason: "event stream closed"})
}

// dispatch handles one event; it returns false once the session is over or
// the event belongs to a session that has already been torn down.
func (f *Facade) dispatch(gen uint64, ev agent.Event) bool {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		log.Printf("[session] dropping %T from stale session", ev)
		return false
	}

	switch e := ev.(type) {
	case agent.Connected:
		if f.state != Connecting || f.stopping {
			f.mu.Unlock()
			return true
		}
		f.conversationID = e.ConversationID
		f.startedAt = f.now()
		f.mode = agent.ModeListening
		f.setStateLocked(Active)
		f.emitLocked(transcript.System, "Successfully connected to AI agent")
		f.mu.Unlock()
		log.Printf("[session] connected conversation=%s", e.ConversationID)
		return true

	case agent.Failure:
		kind := RemoteRuntimeError
		if f.state == Connecting {
			kind = RemoteConnectError
		}
		conn, handle := f.failLocked(&Error{Kind: kind, Err: e.Err}, "Error: ")
		f.mu.Unlock()
		release(conn, handle)
		return false

	case agent.Disconnected:
		if f.state == Connecting {
			err := errors.New("connection closed before confirmation")
			if e.Reason != "" {
				err = fmt.Errorf("connection closed before confirmation: %s", e.Reason)
			}
			conn, handle := f.failLocked(&Error{Kind: RemoteConnectError, Err: err}, "Error: ")
			f.mu.Unlock()
			release(conn, handle)
			return false
		}
		conn, handle := f.detachLocked()
		f.setStateLocked(Disconnecting)
		f.emitLocked(transcript.System, "Disconnected from AI agent")
		f.setStateLocked(Idle)
		f.mu.Unlock()
		log.Printf("[session] remote disconnected: %s", e.Reason)
		release(conn, handle)
		return false

	case agent.ModeChange:
		f.mode = e.Mode
	}

	if line, ok := Normalize(ev); ok {
		f.emitLocked(line.Speaker, line.Text)
	}
	f.mu.Unlock()
	return true
}

// failLocked reports err once, passes through Errored and lands in Idle.
// The caller releases the returned resources after unlocking.
func (f *Facade) failLocked(err *Error, prefix string) (Conn, capture.Handle) {
	log.Printf("[session] %v", err)
	f.lastErr = err
	conn, handle := f.detachLocked()
	f.setStateLocked(Errored)
	f.emitLocked(transcript.System, prefix+message(err))
	f.setStateLocked(Idle)
	return conn, handle
}

// detachLocked invalidates the current generation and hands back its resources.
func (f *Facade) detachLocked() (Conn, capture.Handle) {
	conn, handle := f.conn, f.handle
	f.conn, f.handle = nil, nil
	f.gen++
	f.mode = ""
	f.conversationID = ""
	f.startedAt = time.Time{}
	return conn, handle
}

func (f *Facade) setStateLocked(next State) {
	prev := f.state
	if prev == next {
		return
	}
	f.state = next
	if f.listener != nil {
		f.listener(prev, next)
	}
}

func (f *Facade) system(text string) {
	f.mu.Lock()
	f.emitLocked(transcript.System, text)
	f.mu.Unlock()
}

func (f *Facade) emitLocked(speaker transcript.Speaker, text string) {
	f.sink.Append(transcript.Event{
		ID:        uuid.NewString(),
		Speaker:   speaker,
		Text:      text,
		Timestamp: f.now(),
	})
}

func release(conn Conn, handle capture.Handle) {
	if conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := conn.Close(ctx); err != nil {
			log.Printf("[session] close remote session failed: %v", err)
		}
		cancel()
	}
	if handle != nil {
		if err := handle.Close(); err != nil {
			log.Printf("[session] release capture handle failed: %v", err)
		}
	}
}
