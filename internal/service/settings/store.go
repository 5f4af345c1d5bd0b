package settings

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	model "github.com/zhouzirui/os1/backend/internal/model/settings"
)

// DefaultKey 是配置在键值槽中的默认键名。
const DefaultKey = "aiConfig"

// Store holds the current configuration snapshot and its persisted copy.
type Store struct {
	slot Slot
	key  string
	now  func() time.Time

	mu      sync.RWMutex
	current model.SessionConfig
}

// Option customises a Store.
type Option func(*Store)

// WithKey overrides the slot key.
func WithKey(key string) Option {
	return func(s *Store) {
		if key = strings.TrimSpace(key); key != "" {
			s.key = key
		}
	}
}

// WithClock overrides the time source used to stamp saves.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore 创建配置存储，初始快照为空。
func NewStore(slot Slot, opts ...Option) *Store {
	s := &Store{
		slot: slot,
		key:  DefaultKey,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load 读取持久化配置。槽为空或内容无法解析时返回空配置，只记录日志。
func (s *Store) Load(ctx context.Context) model.SessionConfig {
	cfg, err := s.read(ctx)
	if err != nil {
		log.Printf("[settings] %v, falling back to defaults", err)
		cfg = model.SessionConfig{}
	}

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()
	return cfg
}

func (s *Store) read(ctx context.Context) (model.SessionConfig, error) {
	raw, ok, err := s.slot.Get(ctx, s.key)
	if err != nil {
		return model.SessionConfig{}, &LoadError{Err: err}
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return model.SessionConfig{}, nil
	}

	var cfg model.SessionConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return model.SessionConfig{}, &LoadError{Err: err}
	}
	return cfg, nil
}

// Save 去除首尾空白、记录保存时间并整体覆盖旧配置。
// 写入失败时内存快照保持不变。
func (s *Store) Save(ctx context.Context, phoneNumber, knowledgeSnippet string) (model.SessionConfig, error) {
	savedAt := s.now()
	cfg := model.SessionConfig{
		PhoneNumber:      strings.TrimSpace(phoneNumber),
		KnowledgeSnippet: strings.TrimSpace(knowledgeSnippet),
		Saved:            true,
		SavedAt:          &savedAt,
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return model.SessionConfig{}, &PersistError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.slot.Set(ctx, s.key, string(data)); err != nil {
		return model.SessionConfig{}, &PersistError{Err: err}
	}
	s.current = cfg
	return cfg, nil
}

// Current returns the last loaded or saved snapshot.
func (s *Store) Current() model.SessionConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsPersistError reports whether err came from a failed write.
func IsPersistError(err error) bool {
	var target *PersistError
	return errors.As(err, &target)
}
