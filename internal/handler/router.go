package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	sessionHandler "github.com/zhouzirui/os1/backend/internal/handler/session"
	settingsHandler "github.com/zhouzirui/os1/backend/internal/handler/settings"
	transcriptHandler "github.com/zhouzirui/os1/backend/internal/handler/transcript"
	middlewarePkg "github.com/zhouzirui/os1/backend/internal/middleware"
	callService "github.com/zhouzirui/os1/backend/internal/service/call"
	"github.com/zhouzirui/os1/backend/internal/service/capture"
	sessionService "github.com/zhouzirui/os1/backend/internal/service/session"
	settingsService "github.com/zhouzirui/os1/backend/internal/service/settings"
	transcriptService "github.com/zhouzirui/os1/backend/internal/service/transcript"
	"github.com/zhouzirui/os1/backend/pkg/utils"
)

// Services 路由所需的核心服务。Broker 为空时麦克风不经浏览器代理。
type Services struct {
	Settings   *settingsService.Store
	Transcript *transcriptService.Log
	Session    *sessionService.Facade
	Feed       *sessionService.Feed
	Calls      *callService.Service
	Broker     *capture.ClientProvider
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	transcriptOpts := []transcriptHandler.Option{
		transcriptHandler.WithStateFeed(svc.Session, svc.Feed),
	}
	if svc.Broker != nil {
		transcriptOpts = append(transcriptOpts, transcriptHandler.WithCaptureBroker(svc.Broker))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		settingsHandler.New(svc.Settings, svc.Transcript).RegisterRoutes(api)
		sessionHandler.New(svc.Session, svc.Settings, svc.Calls).RegisterRoutes(api)
		transcriptHandler.New(svc.Transcript, transcriptOpts...).RegisterRoutes(api)
	})

	return r
}
