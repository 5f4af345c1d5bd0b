package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	callModel "github.com/zhouzirui/os1/backend/internal/model/call"
	"github.com/zhouzirui/os1/backend/internal/model/settings"
	callService "github.com/zhouzirui/os1/backend/internal/service/call"
	sessionService "github.com/zhouzirui/os1/backend/internal/service/session"
	settingsService "github.com/zhouzirui/os1/backend/internal/service/settings"
	"github.com/zhouzirui/os1/backend/pkg/utils"
)

// Controller is the lifecycle surface of the session façade.
type Controller interface {
	Start(ctx context.Context, cfg settings.SessionConfig) error
	Stop(ctx context.Context) error
	Toggle(ctx context.Context, cfg settings.SessionConfig) error
	Status() sessionService.Status
}

// ConfigSource exposes the configuration snapshot read at start.
type ConfigSource interface {
	Current() settings.SessionConfig
}

// Handler 会话生命周期与呼叫请求的HTTP处理器
type Handler struct {
	sessions Controller
	config   ConfigSource
	calls    *callService.Service
}

// New 创建会话处理器
func New(sessions Controller, config ConfigSource, calls *callService.Service) *Handler {
	return &Handler{sessions: sessions, config: config, calls: calls}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.handleStatus)
	r.Post("/session/start", h.handleStart)
	r.Post("/session/stop", h.handleStop)
	r.Post("/session/toggle", h.handleToggle)

	if h.calls != nil {
		r.Post("/call", h.handleCall)
		r.Get("/calls", h.handleListCalls)
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.sessions.Status())
}

// handleStart 读取当前配置快照后启动会话，返回时连接确认可能仍未到达。
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Start(r.Context(), h.config.Current()); err != nil {
		h.respondLifecycleError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, h.sessions.Status())
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Stop(r.Context()); err != nil {
		h.respondLifecycleError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.sessions.Status())
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Toggle(r.Context(), h.config.Current()); err != nil {
		h.respondLifecycleError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.sessions.Status())
}

type callResponse struct {
	Request callModel.Request `json:"request"`
	Summary string            `json:"summary"`
}

func (h *Handler) handleCall(w http.ResponseWriter, r *http.Request) {
	req, err := h.calls.Request(r.Context())
	if err != nil {
		if errors.Is(err, settingsService.ErrPhoneNumberRequired) {
			utils.RespondError(w, http.StatusBadRequest, "Please enter and save a phone number first.")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, callResponse{Request: req, Summary: req.Summary()})
}

func (h *Handler) handleListCalls(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.calls.List(r.Context()))
}

// respondLifecycleError 将生命周期错误映射为HTTP状态码。
func (h *Handler) respondLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessionService.ErrSessionBusy),
		errors.Is(err, sessionService.ErrNotActive),
		errors.Is(err, sessionService.ErrStartCancelled):
		utils.RespondError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		utils.RespondError(w, http.StatusRequestTimeout, err.Error())
		return
	}

	kind := sessionService.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case sessionService.PermissionDenied:
		status = http.StatusForbidden
	case sessionService.DeviceError:
		status = http.StatusServiceUnavailable
	case sessionService.RemoteConnectError, sessionService.RemoteRuntimeError, sessionService.RemoteDisconnectError:
		status = http.StatusBadGateway
	}
	utils.RespondErrorKind(w, status, string(kind), err.Error())
}
