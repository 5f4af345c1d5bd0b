package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zhouzirui/os1/backend/internal/model/agent"
	"github.com/zhouzirui/os1/backend/internal/model/settings"
	"github.com/zhouzirui/os1/backend/internal/model/transcript"
	"github.com/zhouzirui/os1/backend/internal/service/capture"
)

type recordingSink struct {
	mu     sync.Mutex
	events []transcript.Event
}

func (s *recordingSink) Append(ev transcript.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) Clear() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

func (s *recordingSink) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, string(ev.Speaker)+": "+ev.Text)
	}
	return out
}

func (s *recordingSink) contains(line string) bool {
	for _, got := range s.texts() {
		if got == line {
			return true
		}
	}
	return false
}

type fakeHandle struct {
	closed atomic.Int32
}

func (h *fakeHandle) ID() string { return "handle" }

func (h *fakeHandle) Close() error {
	h.closed.Add(1)
	return nil
}

type fakeCapture struct {
	err    error
	handle *fakeHandle
	gate   chan struct{}
	calls  atomic.Int32
}

func (c *fakeCapture) RequestCapture(ctx context.Context, _ capture.Constraints) (capture.Handle, error) {
	c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.handle, nil
}

type fakeConn struct {
	events   chan agent.Event
	closeErr error
	closed   atomic.Int32
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan agent.Event, 32)}
}

func (c *fakeConn) ID() string                 { return "conn" }
func (c *fakeConn) Events() <-chan agent.Event { return c.events }

func (c *fakeConn) Close(context.Context) error {
	c.closed.Add(1)
	c.once.Do(func() { close(c.events) })
	return c.closeErr
}

type fakeTransport struct {
	mu       sync.Mutex
	conn     *fakeConn
	err      error
	gate     chan struct{}
	requests []OpenRequest
}

func (t *fakeTransport) Open(ctx context.Context, req OpenRequest) (Conn, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()
	if t.gate != nil {
		<-t.gate
	}
	if t.err != nil {
		return nil, t.err
	}
	return t.conn, nil
}

func (t *fakeTransport) calls() []OpenRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]OpenRequest(nil), t.requests...)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) listen(_, to State) {
	r.mu.Lock()
	r.states = append(r.states, to)
	r.mu.Unlock()
}

func (r *stateRecorder) seen() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type harness struct {
	facade    *Facade
	sink      *recordingSink
	capture   *fakeCapture
	transport *fakeTransport
	conn      *fakeConn
	handle    *fakeHandle
	states    *stateRecorder
}

func newHarness() *harness {
	h := &harness{
		sink:   &recordingSink{},
		handle: &fakeHandle{},
		conn:   newFakeConn(),
		states: &stateRecorder{},
	}
	h.capture = &fakeCapture{handle: h.handle}
	h.transport = &fakeTransport{conn: h.conn}
	h.facade = New(h.transport, h.capture, h.sink, "agent_test", WithStateListener(h.states.listen))
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) startActive(t *testing.T, cfg settings.SessionConfig) {
	t.Helper()
	if err := h.facade.Start(context.Background(), cfg); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	h.conn.events <- agent.Connected{ConversationID: "conv-1"}
	waitFor(t, "active state", func() bool { return h.facade.State() == Active })
}

func TestStartPassesSystemPromptOnlyWhenPresent(t *testing.T) {
	h := newHarness()
	h.startActive(t, settings.SessionConfig{KnowledgeSnippet: "  Be concise.  "})

	reqs := h.transport.calls()
	if len(reqs) != 1 {
		t.Fatalf("expected one open call, got %d", len(reqs))
	}
	if reqs[0].AgentID != "agent_test" || reqs[0].SystemPrompt != "Be concise." {
		t.Fatalf("unexpected open request: %+v", reqs[0])
	}
	if !h.sink.contains("System: Using knowledge base (11 characters)") {
		t.Fatalf("missing knowledge entry: %v", h.sink.texts())
	}
	if got := h.facade.Status(); got.ConversationID != "conv-1" || got.Mode != agent.ModeListening {
		t.Fatalf("unexpected status: %+v", got)
	}

	h2 := newHarness()
	h2.startActive(t, settings.SessionConfig{KnowledgeSnippet: "   "})
	if got := h2.transport.calls()[0].SystemPrompt; got != "" {
		t.Fatalf("expected no system prompt, got %q", got)
	}
}

func TestStartTwiceLeavesOneSession(t *testing.T) {
	h := newHarness()
	h.startActive(t, settings.SessionConfig{})

	if err := h.facade.Start(context.Background(), settings.SessionConfig{}); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	if n := len(h.transport.calls()); n != 1 {
		t.Fatalf("expected exactly one open call, got %d", n)
	}
	if h.facade.State() != Active {
		t.Fatalf("existing session disturbed: %s", h.facade.State())
	}
}

func TestEventsNormalizedInArrivalOrder(t *testing.T) {
	h := newHarness()
	h.startActive(t, settings.SessionConfig{})
	before := len(h.sink.texts())

	events := []agent.Event{
		agent.ModeChange{Mode: "speaking"},
		agent.AgentResponse{Text: "Hello there"},
		agent.ModeChange{Mode: "thinking"},
		agent.UserTranscript{Text: "Hi"},
		agent.UserTranscript{},
		agent.Envelope{Type: "agent_message", Text: "hi"},
		agent.Envelope{Type: "ping"},
		agent.Envelope{Type: "conversation_end"},
		agent.AudioBoundary{Source: agent.UserAudio, Edge: agent.AudioStart},
		agent.AudioBoundary{Source: agent.AgentAudio, Edge: agent.AudioStart},
		agent.ModeChange{Mode: "listening"},
	}
	for _, ev := range events {
		h.conn.events <- ev
	}

	want := []string{
		"System: AI is speaking...",
		"AI: Hello there",
		"User: Hi",
		"AI: hi",
		"System: Conversation ended",
		"System: User audio detected",
		"System: AI is listening...",
	}
	waitFor(t, "normalized events", func() bool { return len(h.sink.texts()) == before+len(want) })

	got := h.sink.texts()[before:]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %q want %q (all: %v)", i, got[i], want[i], got)
		}
	}
	if h.facade.Status().Mode != "listening" {
		t.Fatalf("expected mode listening, got %q", h.facade.Status().Mode)
	}
}

func TestUnknownModeUpdatesModeWithoutEvent(t *testing.T) {
	h := newHarness()
	h.startActive(t, settings.SessionConfig{})
	before := len(h.sink.texts())

	h.conn.events <- agent.ModeChange{Mode: "thinking"}
	waitFor(t, "mode update", func() bool { return h.facade.Status().Mode == "thinking" })

	if got := len(h.sink.texts()); got != before {
		t.Fatalf("expected no transcript events, got %d new", got-before)
	}
}

func TestPermissionDeniedNeverOpensSession(t *testing.T) {
	h := newHarness()
	h.capture.err = &capture.Error{Kind: capture.ErrPermissionDenied, Reason: "Permission denied"}

	err := h.facade.Start(context.Background(), settings.SessionConfig{})
	if KindOf(err) != PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	if n := len(h.transport.calls()); n != 0 {
		t.Fatalf("expected zero open calls, got %d", n)
	}
	if got := h.states.seen(); len(got) != 2 || got[0] != Errored || got[1] != Idle {
		t.Fatalf("expected Errored then Idle, got %v", got)
	}
	failures := 0
	for _, line := range h.sink.texts() {
		if strings.HasPrefix(line, "System: Startup failed: ") {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected one failure entry, got %v", h.sink.texts())
	}
}

func TestDeviceErrorKind(t *testing.T) {
	h := newHarness()
	h.capture.err = &capture.Error{Kind: capture.ErrDevice, Reason: "no microphone"}

	if err := h.facade.Start(context.Background(), settings.SessionConfig{}); KindOf(err) != DeviceError {
		t.Fatalf("expected DeviceError, got %v", err)
	}
	if h.facade.State() != Idle {
		t.Fatalf("expected Idle, got %s", h.facade.State())
	}
}

func TestOpenFailureReleasesCapture(t *testing.T) {
	h := newHarness()
	h.transport.err = errors.New("handshake refused")

	if err := h.facade.Start(context.Background(), settings.SessionConfig{}); KindOf(err) != RemoteConnectError {
		t.Fatalf("expected RemoteConnectError, got %v", err)
	}
	if h.handle.closed.Load() != 1 {
		t.Fatal("capture handle not released")
	}
	if h.facade.State() != Idle {
		t.Fatalf("expected Idle, got %s", h.facade.State())
	}
}

func TestStopForcesIdleWhenCloseFails(t *testing.T) {
	h := newHarness()
	h.conn.closeErr = errors.New("socket already gone")
	h.startActive(t, settings.SessionConfig{})

	err := h.facade.Stop(context.Background())
	if KindOf(err) != RemoteDisconnectError {
		t.Fatalf("expected RemoteDisconnectError, got %v", err)
	}
	if h.facade.State() != Idle {
		t.Fatalf("expected Idle, got %s", h.facade.State())
	}
	if h.handle.closed.Load() != 1 {
		t.Fatal("capture handle not released")
	}
	if !h.sink.contains("System: Error stopping: socket already gone") {
		t.Fatalf("missing stop error entry: %v", h.sink.texts())
	}

	if err := h.facade.Start(context.Background(), settings.SessionConfig{}); err != nil {
		t.Fatalf("facade not reusable after failed stop: %v", err)
	}
}

func TestStopPassesThroughDisconnecting(t *testing.T) {
	h := newHarness()
	h.startActive(t, settings.SessionConfig{})

	if err := h.facade.Stop(context.Background()); err != nil {
		t.Fatalf("Stop err: %v", err)
	}
	got := h.states.seen()
	want := []State{Connecting, Active, Disconnecting, Idle}
	if len(got) != len(want) {
		t.Fatalf("unexpected transitions %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transition %d: got %s want %s", i, got[i], want[i])
		}
	}
	if h.conn.closed.Load() != 1 {
		t.Fatal("remote session not closed")
	}
}

func TestStopWhileIdle(t *testing.T) {
	h := newHarness()
	if err := h.facade.Stop(context.Background()); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestStopDuringPermissionWait(t *testing.T) {
	h := newHarness()
	h.capture.gate = make(chan struct{})

	startErr := make(chan error, 1)
	go func() { startErr <- h.facade.Start(context.Background(), settings.SessionConfig{}) }()
	waitFor(t, "capture request", func() bool { return h.capture.calls.Load() == 1 })

	stopErr := make(chan error, 1)
	go func() { stopErr <- h.facade.Stop(context.Background()) }()
	waitFor(t, "stop pending", func() bool { return h.sink.contains("System: Stopping conversation...") })

	close(h.capture.gate)

	if err := <-startErr; !errors.Is(err, ErrStartCancelled) {
		t.Fatalf("expected ErrStartCancelled, got %v", err)
	}
	if err := <-stopErr; err != nil {
		t.Fatalf("Stop err: %v", err)
	}
	if n := len(h.transport.calls()); n != 0 {
		t.Fatalf("expected no open call, got %d", n)
	}
	if h.handle.closed.Load() != 1 {
		t.Fatal("late capture handle not released")
	}
	if h.facade.State() != Idle {
		t.Fatalf("expected Idle, got %s", h.facade.State())
	}
}

func TestLateConnectConfirmationDiscarded(t *testing.T) {
	h := newHarness()
	h.transport.gate = make(chan struct{})

	startErr := make(chan error, 1)
	go func() { startErr <- h.facade.Start(context.Background(), settings.SessionConfig{}) }()
	waitFor(t, "open call", func() bool { return len(h.transport.calls()) == 1 })

	stopErr := make(chan error, 1)
	go func() { stopErr <- h.facade.Stop(context.Background()) }()
	waitFor(t, "stop pending", func() bool { return h.sink.contains("System: Stopping conversation...") })

	h.conn.events <- agent.Connected{ConversationID: "late"}
	close(h.transport.gate)

	if err := <-startErr; !errors.Is(err, ErrStartCancelled) {
		t.Fatalf("expected ErrStartCancelled, got %v", err)
	}
	if err := <-stopErr; err != nil {
		t.Fatalf("Stop err: %v", err)
	}
	if h.conn.closed.Load() != 1 {
		t.Fatal("late session not torn down")
	}
	for _, s := range h.states.seen() {
		if s == Active {
			t.Fatal("late session surfaced as Active")
		}
	}
	if h.facade.State() != Idle {
		t.Fatalf("expected Idle, got %s", h.facade.State())
	}
}

func TestRemoteFailureWhileActive(t *testing.T) {
	h := newHarness()
	h.startActive(t, settings.SessionConfig{})

	h.conn.events <- agent.Failure{Err: errors.New("quota exceeded")}
	waitFor(t, "idle after failure", func() bool { return h.facade.State() == Idle })

	if !h.sink.contains("System: Error: quota exceeded") {
		t.Fatalf("missing error entry: %v", h.sink.texts())
	}
	if h.conn.closed.Load() != 1 || h.handle.closed.Load() != 1 {
		t.Fatal("resources not released together")
	}
	if got := h.facade.Status().LastError; !strings.Contains(got, string(RemoteRuntimeError)) {
		t.Fatalf("unexpected last error %q", got)
	}
	seen := h.states.seen()
	if seen[len(seen)-2] != Errored || seen[len(seen)-1] != Idle {
		t.Fatalf("expected Errored then Idle, got %v", seen)
	}
}

func TestRemoteDisconnectWhileActive(t *testing.T) {
	h := newHarness()
	h.startActive(t, settings.SessionConfig{})

	h.conn.events <- agent.Disconnected{Reason: "agent ended call"}
	waitFor(t, "idle after disconnect", func() bool { return h.facade.State() == Idle })

	if !h.sink.contains("System: Disconnected from AI agent") {
		t.Fatalf("missing disconnect entry: %v", h.sink.texts())
	}
	if h.handle.closed.Load() != 1 {
		t.Fatal("capture handle not released")
	}
}

func TestToggle(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.facade.Toggle(ctx, settings.SessionConfig{}); err != nil {
		t.Fatalf("Toggle start err: %v", err)
	}
	if h.facade.State() != Connecting {
		t.Fatalf("expected Connecting, got %s", h.facade.State())
	}
	if err := h.facade.Toggle(ctx, settings.SessionConfig{}); err != nil {
		t.Fatalf("Toggle stop err: %v", err)
	}
	if h.facade.State() != Idle {
		t.Fatalf("expected Idle, got %s", h.facade.State())
	}
}

func TestKnowledgeLengthCountsCharacters(t *testing.T) {
	h := newHarness()
	h.startActive(t, settings.SessionConfig{KnowledgeSnippet: "Réponds en français"})

	if !h.sink.contains("System: Using knowledge base (19 characters)") {
		t.Fatalf("missing knowledge entry: %v", h.sink.texts())
	}
}

func TestConnectedIgnoredWhileStopping(t *testing.T) {
	h := newHarness()
	if err := h.facade.Start(context.Background(), settings.SessionConfig{}); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	h.facade.mu.Lock()
	h.facade.stopping = true
	gen := h.facade.gen
	h.facade.mu.Unlock()

	if !h.facade.dispatch(gen, agent.Connected{ConversationID: "racing"}) {
		t.Fatal("dispatch ended the session")
	}
	if st := h.facade.Status(); st.State != Connecting || st.ConversationID != "" {
		t.Fatalf("confirmation applied during stop: %+v", st)
	}
	for _, s := range h.states.seen() {
		if s == Active {
			t.Fatal("surfaced as Active while stopping")
		}
	}

	h.facade.mu.Lock()
	h.facade.stopping = false
	h.facade.mu.Unlock()
	if err := h.facade.Stop(context.Background()); err != nil {
		t.Fatalf("Stop err: %v", err)
	}
}
