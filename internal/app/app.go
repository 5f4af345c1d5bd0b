package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/os1/backend/internal/config"
	"github.com/zhouzirui/os1/backend/internal/model/transcript"
	"github.com/zhouzirui/os1/backend/internal/service/agent"
	"github.com/zhouzirui/os1/backend/internal/service/call"
	"github.com/zhouzirui/os1/backend/internal/service/capture"
	"github.com/zhouzirui/os1/backend/internal/service/session"
	"github.com/zhouzirui/os1/backend/internal/service/settings"
	transcriptService "github.com/zhouzirui/os1/backend/internal/service/transcript"
	"github.com/zhouzirui/os1/backend/internal/storage/sqlite"
)

// App 持有进程内共享的全部服务。
type App struct {
	Config     *config.Config
	Settings   *settings.Store
	Transcript *transcriptService.Log
	Feed       *session.Feed
	Session    *session.Facade
	Calls      *call.Service
	// Broker 仅在由浏览器代理麦克风权限时非空。
	Broker *capture.ClientProvider

	closeSlot func() error
}

type options struct {
	provider  capture.Provider
	transport session.Transport
}

// Option customises the wiring.
type Option func(*options)

// WithCaptureProvider replaces the capture provider chosen from configuration.
func WithCaptureProvider(p capture.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithTransport replaces the remote agent transport.
func WithTransport(t session.Transport) Option {
	return func(o *options) { o.transport = t }
}

// New 按配置装配服务并加载已保存的配置。
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	slot, closeSlot, err := openSlot(ctx, cfg.Settings)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Settings:   settings.NewStore(slot, settings.WithKey(cfg.Settings.Key)),
		Transcript: transcriptService.NewLog(cfg.Transcript.Limit),
		Feed:       session.NewFeed(),
		closeSlot:  closeSlot,
	}
	a.Settings.Load(ctx)

	provider := o.provider
	if provider == nil {
		if cfg.Capture.Device != "" {
			log.Printf("[app] capturing from device %s", cfg.Capture.Device)
			provider = capture.NewDeviceProvider(cfg.Capture.Device)
		} else {
			a.Broker = capture.NewClientProvider(cfg.Capture.Timeout)
			provider = a.Broker
		}
	}

	transport := o.transport
	if transport == nil {
		transport = agent.NewTransport(agent.Options{
			URL:              cfg.Agent.URL,
			APIKey:           cfg.Agent.APIKey,
			HandshakeTimeout: cfg.Agent.HandshakeTimeout,
		})
	}

	a.Session = session.New(transport, provider, a.Transcript, cfg.Agent.ID,
		session.WithStateListener(a.Feed.Publish))
	a.Calls = call.NewService(a.Settings, a.Transcript)

	a.Transcript.Append(transcript.Event{
		ID:        uuid.NewString(),
		Speaker:   transcript.System,
		Text:      "OS1 Application initialized",
		Timestamp: time.Now(),
	})
	return a, nil
}

// Close 停止会话并关闭配置存储。
func (a *App) Close(ctx context.Context) {
	a.Session.Shutdown(ctx)
	if a.closeSlot != nil {
		if err := a.closeSlot(); err != nil {
			log.Printf("[app] close settings store: %v", err)
		}
	}
}

func openSlot(ctx context.Context, cfg config.SettingsConfig) (settings.Slot, func() error, error) {
	if cfg.Store == config.StoreMemory {
		log.Println("[app] settings kept in memory only")
		return settings.NewMemorySlot(), nil, nil
	}

	slot, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open settings store: %w", err)
	}
	log.Printf("[app] settings stored in %s", cfg.DBPath)
	return slot, slot.Close, nil
}
