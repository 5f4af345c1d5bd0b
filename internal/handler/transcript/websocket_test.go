package transcript

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/os1/backend/internal/model/transcript"
	"github.com/zhouzirui/os1/backend/internal/service/capture"
	sessionService "github.com/zhouzirui/os1/backend/internal/service/session"
)

type fixedStatus sessionService.Status

func (s fixedStatus) Status() sessionService.Status { return sessionService.Status(s) }

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/transcript/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg received
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestWebSocketSnapshotAndUpdates(t *testing.T) {
	l := seededLog()
	feed := sessionService.NewFeed()
	srv := httptest.NewServer(setupRouter(l, WithStateFeed(fixedStatus{State: sessionService.Connecting}, feed)))
	defer srv.Close()

	conn := dial(t, srv)

	msg := readMessage(t, conn)
	if msg.Type != "snapshot" {
		t.Fatalf("expected snapshot first, got %s", msg.Type)
	}
	var snap struct {
		Events []transcript.Event    `json:"events"`
		Status sessionService.Status `json:"status"`
	}
	if err := json.Unmarshal(msg.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Events) != 2 || snap.Status.State != sessionService.Connecting {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	l.Append(transcript.Event{Speaker: transcript.Agent, Text: "hi there", Timestamp: time.Now()})
	msg = readMessage(t, conn)
	if msg.Type != "transcript" || !strings.Contains(string(msg.Data), "hi there") {
		t.Fatalf("unexpected update %s %s", msg.Type, msg.Data)
	}

	feed.Publish(sessionService.Connecting, sessionService.Active)
	msg = readMessage(t, conn)
	if msg.Type != "state" || !strings.Contains(string(msg.Data), `"to":"active"`) {
		t.Fatalf("unexpected state message %s %s", msg.Type, msg.Data)
	}
}

func TestWebSocketClearAndUnknown(t *testing.T) {
	l := seededLog()
	srv := httptest.NewServer(setupRouter(l))
	defer srv.Close()

	conn := dial(t, srv)
	readMessage(t, conn)

	if err := conn.WriteJSON(map[string]any{"type": "clear"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != "cleared" {
		t.Fatalf("expected cleared, got %s", msg.Type)
	}
	if l.Len() != 0 {
		t.Fatalf("expected empty log, got %d", l.Len())
	}

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != "error" {
		t.Fatalf("expected error, got %s", msg.Type)
	}
}

func TestWebSocketBrokersCapturePermission(t *testing.T) {
	broker := capture.NewClientProvider(3 * time.Second)
	srv := httptest.NewServer(setupRouter(seededLog(), WithCaptureBroker(broker)))
	defer srv.Close()

	conn := dial(t, srv)
	readMessage(t, conn)

	deadline := time.Now().Add(2 * time.Second)
	for !broker.Attached() {
		if time.Now().After(deadline) {
			t.Fatal("client never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	type result struct {
		handle capture.Handle
		err    error
	}
	done := make(chan result, 1)
	go func() {
		h, err := broker.RequestCapture(context.Background(), capture.DefaultConstraints())
		done <- result{h, err}
	}()

	msg := readMessage(t, conn)
	if msg.Type != capture.MessageRequest {
		t.Fatalf("expected capture request, got %s", msg.Type)
	}
	var req capture.Message
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Constraints == nil || !req.Constraints.EchoCancellation {
		t.Fatalf("expected default constraints, got %+v", req.Constraints)
	}

	reply := map[string]any{"type": "capture", "data": capture.Reply{ID: req.ID, Granted: true}}
	if err := conn.WriteJSON(reply); err != nil {
		t.Fatalf("write reply: %v", err)
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("expected grant, got %v", res.err)
	}

	if err := res.handle.Close(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != capture.MessageRelease {
		t.Fatalf("expected capture release, got %s", msg.Type)
	}
}

func TestWebSocketDisconnectFailsPendingCapture(t *testing.T) {
	broker := capture.NewClientProvider(3 * time.Second)
	srv := httptest.NewServer(setupRouter(seededLog(), WithCaptureBroker(broker)))
	defer srv.Close()

	conn := dial(t, srv)
	readMessage(t, conn)

	deadline := time.Now().Add(2 * time.Second)
	for !broker.Attached() {
		if time.Now().After(deadline) {
			t.Fatal("client never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan error, 1)
	go func() {
		_, err := broker.RequestCapture(context.Background(), capture.DefaultConstraints())
		done <- err
	}()

	if msg := readMessage(t, conn); msg.Type != capture.MessageRequest {
		t.Fatalf("expected capture request, got %s", msg.Type)
	}
	conn.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected failure after client disconnect")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("capture request never resolved")
	}
}
