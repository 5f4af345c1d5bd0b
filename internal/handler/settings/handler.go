package settings

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	model "github.com/zhouzirui/os1/backend/internal/model/settings"
	"github.com/zhouzirui/os1/backend/internal/model/transcript"
	settingsService "github.com/zhouzirui/os1/backend/internal/service/settings"
	"github.com/zhouzirui/os1/backend/pkg/utils"
)

// Sink receives the save confirmation entries.
type Sink interface {
	Append(ev transcript.Event)
}

// Handler 配置读写的HTTP处理器
type Handler struct {
	store *settingsService.Store
	sink  Sink
}

// New 创建配置处理器
func New(store *settingsService.Store, sink Sink) *Handler {
	return &Handler{store: store, sink: sink}
}

// RegisterRoutes 注册配置相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/config", h.handleGet)
	r.Put("/config", h.handleSave)
	r.Post("/config", h.handleSave)
}

type configResponse struct {
	Config model.SessionConfig `json:"config"`
	Status model.Status        `json:"status"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	cfg := h.store.Current()
	utils.RespondJSON(w, http.StatusOK, configResponse{Config: cfg, Status: cfg.Summarize()})
}

// handleSave 整体覆盖保存，电话号码先过滤非法字符。
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PhoneNumber   string `json:"phoneNumber"`
		KnowledgeText string `json:"knowledgeText"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := h.store.Save(r.Context(), settingsService.SanitizePhone(payload.PhoneNumber), payload.KnowledgeText)
	if err != nil {
		log.Printf("[settings] save failed: %v", err)
		h.system("Error saving configuration")
		utils.RespondError(w, http.StatusInternalServerError, "Error saving configuration")
		return
	}

	h.system("Configuration saved successfully")
	utils.RespondJSON(w, http.StatusOK, configResponse{Config: cfg, Status: cfg.Summarize()})
}

func (h *Handler) system(text string) {
	if h.sink == nil {
		return
	}
	h.sink.Append(transcript.Event{
		ID:        uuid.NewString(),
		Speaker:   transcript.System,
		Text:      text,
		Timestamp: time.Now(),
	})
}
