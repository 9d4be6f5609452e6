package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jackpotreels/internal/game"
)

// Memory keeps sessions in process. Each record has its own lock so updates
// to different sessions never wait on each other.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
}

type memEntry struct {
	mu      sync.Mutex
	rec     game.Record
	removed bool
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*memEntry)}
}

func (m *Memory) Create(ctx context.Context, rec game.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[rec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrSessionExists, rec.ID)
	}
	m.entries[rec.ID] = &memEntry{rec: rec.Clone()}
	return nil
}

func (m *Memory) entry(id string) (*memEntry, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", game.ErrSessionNotFound, id)
	}
	return e, nil
}

func (m *Memory) Get(ctx context.Context, id string) (game.Record, error) {
	if err := ctx.Err(); err != nil {
		return game.Record{}, err
	}
	e, err := m.entry(id)
	if err != nil {
		return game.Record{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return game.Record{}, fmt.Errorf("%w: %s", game.ErrSessionNotFound, id)
	}
	return e.rec.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, id string, fn func(rec *game.Record) error) (game.Record, error) {
	if err := ctx.Err(); err != nil {
		return game.Record{}, err
	}
	e, err := m.entry(id)
	if err != nil {
		return game.Record{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return game.Record{}, fmt.Errorf("%w: %s", game.ErrSessionNotFound, id)
	}

	work := e.rec.Clone()
	if err := fn(&work); err != nil {
		return game.Record{}, err
	}
	work.ID = e.rec.ID
	e.rec = work
	return work.Clone(), nil
}

// PruneIdle drops sessions not updated since before. Sessions that are being
// updated right now are left alone.
func (m *Memory) PruneIdle(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.rec.UpdatedAt.Before(before) {
			e.removed = true
			delete(m.entries, id)
			n++
		}
		e.mu.Unlock()
	}
	return n, nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() {}
