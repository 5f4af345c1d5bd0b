package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/os1/backend/internal/model/transcript"
	"github.com/zhouzirui/os1/backend/internal/service/capture"
	sessionService "github.com/zhouzirui/os1/backend/internal/service/session"
	transcriptService "github.com/zhouzirui/os1/backend/internal/service/transcript"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeWait    = 10 * time.Second
	outboxBuffer = 32
)

var errClientGone = errors.New("live client disconnected")

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type snapshotData struct {
	Events []transcript.Event     `json:"events"`
	Status *sessionService.Status `json:"status,omitempty"`
}

type stateData struct {
	Transition sessionService.Transition `json:"transition"`
	Status     sessionService.Status     `json:"status"`
}

func newMessage(kind string, data any) outgoingMessage {
	return outgoingMessage{Type: kind, Data: data, Timestamp: time.Now().Unix()}
}

// handleWebSocket 实时通道：推送记录与状态，并代理麦克风权限请求。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] live client connected from %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	snapshot, updates, unsubscribe := h.log.Subscribe()
	defer unsubscribe()

	var states <-chan sessionService.Transition
	if h.feed != nil {
		ch, cancelStates := h.feed.Subscribe()
		defer cancelStates()
		states = ch
	}

	first := snapshotData{Events: snapshot}
	if h.status != nil {
		st := h.status.Status()
		first.Status = &st
	}

	outbox := make(chan outgoingMessage, outboxBuffer)

	if h.broker != nil {
		detach := h.broker.Attach(func(m capture.Message) error {
			select {
			case outbox <- newMessage(m.Type, m):
				return nil
			case <-ctx.Done():
				return errClientGone
			}
		})
		defer detach()
	}

	written := make(chan struct{})
	go func() {
		defer close(written)
		h.writeLoop(ctx, conn, newMessage("snapshot", first), updates, states, outbox)
		// 写失败时关闭连接以结束读循环
		cancel()
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				log.Printf("[websocket] read error: %v", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleInbound(ctx, outbox, &msg)
	}

	cancel()
	<-written
	log.Printf("[websocket] live client disconnected")
}

func (h *Handler) handleInbound(ctx context.Context, outbox chan<- outgoingMessage, msg *inboundMessage) {
	switch msg.Type {
	case "capture":
		if h.broker == nil {
			h.queue(ctx, outbox, newMessage("error", map[string]string{"message": "capture broker unavailable"}))
			return
		}
		var reply capture.Reply
		if err := json.Unmarshal(msg.Data, &reply); err != nil || reply.ID == "" {
			h.queue(ctx, outbox, newMessage("error", map[string]string{"message": "invalid capture reply"}))
			return
		}
		h.broker.Resolve(reply)
	case "clear":
		h.log.Clear()
	case "ping":
		h.queue(ctx, outbox, newMessage("pong", nil))
	default:
		h.queue(ctx, outbox, newMessage("error", map[string]string{"message": "unknown message type: " + msg.Type}))
	}
}

func (h *Handler) queue(ctx context.Context, outbox chan<- outgoingMessage, msg outgoingMessage) {
	select {
	case outbox <- msg:
	case <-ctx.Done():
	}
}

// writeLoop 是连接上唯一的写者，快照总是第一条消息。
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, first outgoingMessage, updates <-chan transcriptService.Update, states <-chan sessionService.Transition, outbox <-chan outgoingMessage) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(msg outgoingMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("[websocket] write %s failed: %v", msg.Type, err)
			return false
		}
		return true
	}

	if !write(first) {
		return
	}

	for {
		var msg outgoingMessage
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		case msg = <-outbox:
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.Cleared {
				msg = newMessage("cleared", nil)
			} else {
				msg = newMessage("transcript", u.Event)
			}
		case t, ok := <-states:
			if !ok {
				return
			}
			data := stateData{Transition: t}
			if h.status != nil {
				data.Status = h.status.Status()
			}
			msg = newMessage("state", data)
		}
		if !write(msg) {
			return
		}
	}
}
