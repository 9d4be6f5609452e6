package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"jackpotreels/internal/db"
	"jackpotreels/internal/game"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	table         = "reel_sessions"
	colID         = "id"
	colState      = "state"
	colPhase      = "phase"
	colPending    = "pending"
	colCreatedAt  = "created_at"
	colUpdatedAt  = "updated_at"
	defaultSQLite = "reels.db"
)

var (
	ErrSessionExists = errors.New("session already exists")
	ErrUnknownDriver = errors.New("unknown store driver")
)

// Store adds housekeeping on top of the session store the game service
// needs.
type Store interface {
	game.Store
	PruneIdle(ctx context.Context, before time.Time) (int64, error)
	Close()
}

type Options struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
	Pool        db.PoolOptions
}

func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverPostgres:
		if strings.TrimSpace(opts.DatabaseURL) == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres store")
		}
		pool, err := db.Connect(ctx, opts.DatabaseURL, opts.Pool)
		if err != nil {
			return nil, err
		}
		s, err := NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		path := strings.TrimSpace(opts.SQLitePath)
		if path == "" {
			path = defaultSQLite
		}
		return OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

type encodedRecord struct {
	state   []byte
	pending []byte
}

func encodeRecord(rec game.Record) (encodedRecord, error) {
	state, err := json.Marshal(rec.State)
	if err != nil {
		return encodedRecord{}, fmt.Errorf("encode state: %w", err)
	}
	out := encodedRecord{state: state}
	if rec.Pending != nil {
		pending, err := json.Marshal(rec.Pending)
		if err != nil {
			return encodedRecord{}, fmt.Errorf("encode pending spin: %w", err)
		}
		out.pending = pending
	}
	return out, nil
}

func (e encodedRecord) pendingArg() any {
	if e.pending == nil {
		return nil
	}
	return e.pending
}

func decodeRecord(id string, state []byte, phase string, pending []byte, createdAt, updatedAt time.Time) (game.Record, error) {
	rec := game.Record{
		ID:        id,
		Phase:     game.Phase(phase),
		CreatedAt: createdAt.UTC(),
		UpdatedAt: updatedAt.UTC(),
	}
	if err := json.Unmarshal(state, &rec.State); err != nil {
		return game.Record{}, fmt.Errorf("decode state for %s: %w", id, err)
	}
	if len(pending) > 0 && string(pending) != "null" {
		var p game.SpinResult
		if err := json.Unmarshal(pending, &p); err != nil {
			return game.Record{}, fmt.Errorf("decode pending spin for %s: %w", id, err)
		}
		rec.Pending = &p
	}
	if rec.Phase == "" {
		rec.Phase = game.PhaseIdle
	}
	return rec, nil
}
