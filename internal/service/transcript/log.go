package transcript

import (
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/zhouzirui/os1/backend/internal/model/transcript"
)

// DefaultLimit 默认保留的记录条数。
const DefaultLimit = 500

const subscriberBuffer = 64

// Update is delivered to subscribers: either one appended event or a clear.
type Update struct {
	Event   *transcript.Event
	Cleared bool
}

// Log is the append-only transcript shared by the façade and every UI view.
type Log struct {
	mu     sync.RWMutex
	limit  int
	events []transcript.Event
	subs   map[int]chan Update
	nextID int
}

// NewLog bootstraps an in-memory transcript keeping at most limit entries.
func NewLog(limit int) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Log{
		limit:  limit,
		events: make([]transcript.Event, 0, 64),
		subs:   make(map[int]chan Update),
	}
}

// Append 追加一条记录并通知订阅者。慢订阅者会丢失更新而不会阻塞追加。
func (l *Log) Append(ev transcript.Event) {
	if !ev.Speaker.Valid() {
		log.Printf("[transcript] dropping event with unknown speaker %q", ev.Speaker)
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, ev)
	if over := len(l.events) - l.limit; over > 0 {
		l.events = append(l.events[:0:0], l.events[over:]...)
	}

	l.broadcast(Update{Event: &ev})
}

// Clear 清空记录。
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = l.events[:0]
	l.broadcast(Update{Cleared: true})
}

// Events returns a copy of the transcript in production order.
func (l *Log) Events() []transcript.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	copied := make([]transcript.Event, len(l.events))
	copy(copied, l.events)
	return copied
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Subscribe 返回当前快照与后续更新通道；调用 cancel 释放订阅。
func (l *Log) Subscribe() (snapshot []transcript.Event, updates <-chan Update, cancel func()) {
	ch := make(chan Update, subscriberBuffer)

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	snapshot = make([]transcript.Event, len(l.events))
	copy(snapshot, l.events)
	l.mu.Unlock()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
	return snapshot, ch, cancel
}

// broadcast must be called with l.mu held.
func (l *Log) broadcast(u Update) {
	for id, ch := range l.subs {
		select {
		case ch <- u:
		default:
			log.Printf("[transcript] subscriber %d lagging, update dropped", id)
		}
	}
}
