package transcript

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/os1/backend/internal/service/capture"
	sessionService "github.com/zhouzirui/os1/backend/internal/service/session"
	transcriptService "github.com/zhouzirui/os1/backend/internal/service/transcript"
	"github.com/zhouzirui/os1/backend/pkg/utils"
)

// StatusSource exposes the session snapshot pushed alongside state changes.
type StatusSource interface {
	Status() sessionService.Status
}

// CaptureBroker lets a connected UI answer microphone permission requests.
type CaptureBroker interface {
	Attach(send capture.Sender) (detach func())
	Resolve(reply capture.Reply) bool
}

// Handler 记录导出、清空与实时推送的处理器
type Handler struct {
	log      *transcriptService.Log
	status   StatusSource
	feed     *sessionService.Feed
	broker   CaptureBroker
	upgrader websocket.Upgrader

	sseHeartbeat time.Duration
}

// Option customises a Handler.
type Option func(*Handler)

// WithStateFeed pushes session transitions to live clients.
func WithStateFeed(status StatusSource, feed *sessionService.Feed) Option {
	return func(h *Handler) {
		h.status = status
		h.feed = feed
	}
}

// WithCaptureBroker routes capture permission requests through live clients.
func WithCaptureBroker(broker CaptureBroker) Option {
	return func(h *Handler) { h.broker = broker }
}

// New 创建记录处理器
func New(transcriptLog *transcriptService.Log, opts ...Option) *Handler {
	h := &Handler{
		log: transcriptLog,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sseHeartbeat: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes 注册记录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/transcript", h.handleExport)
	r.Delete("/transcript", h.handleClear)
	r.Get("/transcript/stream", h.handleStream)
	r.Get("/transcript/ws", h.handleWebSocket)
}

// handleExport 按 format 查询参数导出当前记录。
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := transcriptService.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "transcript."+string(format)))
	}
	if err := transcriptService.Export(w, h.log.Events(), format); err != nil {
		log.Printf("[transcript] export failed: %v", err)
	}
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	h.log.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// handleStream 只读的SSE推送，先发送快照再发送增量。
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	snapshot, updates, cancel := h.log.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	log.Printf("[sse] transcript stream opened")
	defer log.Printf("[sse] transcript stream closed")

	if err := utils.SendSSEEvent(w, flusher, "snapshot", snapshot); err != nil {
		return
	}

	ticker := time.NewTicker(h.sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		case u, ok := <-updates:
			if !ok {
				return
			}
			var err error
			if u.Cleared {
				err = utils.SendSSEEvent(w, flusher, "cleared", struct{}{})
			} else {
				err = utils.SendSSEEvent(w, flusher, "transcript", u.Event)
			}
			if err != nil {
				return
			}
		}
	}
}
