package stream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"jackpotreels/internal/game"
)

const DefaultBuffer = 32

type Subscriber struct {
	C <-chan game.Update

	ch        chan game.Update
	sessionID string
	dropped   atomic.Uint64
}

func (s *Subscriber) SessionID() string {
	return s.sessionID
}

// Dropped counts updates discarded because the subscriber fell behind.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

// Hub fans committed session updates out to live subscribers. Sends never
// block: a subscriber whose buffer is full misses the update.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscriber]struct{}
	buffer int
	log    *slog.Logger
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[*Subscriber]struct{}),
		buffer: buffer,
		log:    logger,
	}
}

func (h *Hub) Subscribe(sessionID string) (*Subscriber, func()) {
	ch := make(chan game.Update, h.buffer)
	sub := &Subscriber{C: ch, ch: ch, sessionID: sessionID}

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[sessionID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
			close(sub.ch)
		})
	}
}

func (h *Hub) Notify(_ context.Context, u game.Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[u.SessionID] {
		select {
		case sub.ch <- u:
		default:
			if sub.dropped.Add(1) == 1 {
				h.log.Warn("stream subscriber falling behind", "session_id", u.SessionID)
			}
		}
	}
}

func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
