package call

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/zhouzirui/os1/backend/internal/model/call"
	"github.com/zhouzirui/os1/backend/internal/model/settings"
	"github.com/zhouzirui/os1/backend/internal/model/transcript"
	settingsservice "github.com/zhouzirui/os1/backend/internal/service/settings"
)

// ConfigSource exposes the current configuration snapshot.
type ConfigSource interface {
	Current() settings.SessionConfig
}

// Sink receives the transcript entry for each accepted request.
type Sink interface {
	Append(ev transcript.Event)
}

// Service records outbound call requests against the saved configuration.
type Service struct {
	config ConfigSource
	sink   Sink
	now    func() time.Time

	mu       sync.RWMutex
	requests []call.Request
}

// NewService creates the call request service.
func NewService(config ConfigSource, sink Sink) *Service {
	return &Service{
		config: config,
		sink:   sink,
		now:    time.Now,
	}
}

// Request 校验已保存的电话号码，记录请求并写入一条系统记录。
func (s *Service) Request(_ context.Context) (call.Request, error) {
	cfg := s.config.Current()
	phone := strings.TrimSpace(cfg.PhoneNumber)
	if phone == "" {
		return call.Request{}, settingsservice.ErrPhoneNumberRequired
	}

	now := s.now()
	req := call.Request{
		ID:             uuid.NewString(),
		PhoneNumber:    phone,
		HasKnowledge:   cfg.KnowledgeSnippet != "",
		KnowledgeChars: utf8.RuneCountInString(cfg.KnowledgeSnippet),
		RequestedAt:    now.UTC(),
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	log.Printf("[call] requested %s (knowledge=%v)", phone, req.HasKnowledge)
	if s.sink != nil {
		s.sink.Append(transcript.Event{
			ID:        uuid.NewString(),
			Speaker:   transcript.System,
			Text:      "Call request: " + phone,
			Timestamp: now,
		})
	}
	return req, nil
}

// List returns the recorded requests, oldest first.
func (s *Service) List(_ context.Context) []call.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]call.Request, len(s.requests))
	copy(out, s.requests)
	return out
}
