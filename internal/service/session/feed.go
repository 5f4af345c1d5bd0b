package session

import (
	"log"
	"sync"
	"time"
)

// Transition 一次状态迁移。
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

const feedBuffer = 16

// Feed fans state transitions out to subscribers. Publish never blocks, so it
// is safe to use as the façade's StateListener.
type Feed struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Transition
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan Transition)}
}

// Publish delivers a transition to every subscriber; a full subscriber misses it.
func (f *Feed) Publish(from, to State) {
	t := Transition{From: from, To: to, At: time.Now()}

	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		select {
		case ch <- t:
		default:
			log.Printf("[session] state subscriber %d lagging, dropped %s -> %s", id, from, to)
		}
	}
}

// Subscribe registers a subscriber. cancel closes the channel.
func (f *Feed) Subscribe() (<-chan Transition, func()) {
	ch := make(chan Transition, feedBuffer)

	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}
