package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"jackpotreels/internal/db"
	"jackpotreels/internal/game"
)

func newRecord(updatedAt time.Time) game.Record {
	return game.Record{
		ID:        uuid.NewString(),
		State:     game.NewState(game.DefaultRules()),
		Phase:     game.PhaseIdle,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
}

func runContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	rec := newRecord(now)
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, rec); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("duplicate create: got %v want ErrSessionExists", err)
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.State.Balance.Equal(decimal.NewFromInt(1000)) || got.Phase != game.PhaseIdle || got.Pending != nil {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, game.ErrSessionNotFound) {
		t.Fatalf("get missing: got %v want ErrSessionNotFound", err)
	}
	if _, err := s.Update(ctx, "missing", func(*game.Record) error { return nil }); !errors.Is(err, game.ErrSessionNotFound) {
		t.Fatalf("update missing: got %v want ErrSessionNotFound", err)
	}

	pending := game.SpinResult{{Strip: 1, Icon: 2}, {Strip: 3, Icon: 4}, {Strip: 0, Icon: 5}}
	updated, err := s.Update(ctx, rec.ID, func(r *game.Record) error {
		r.State.SpinsRemaining = 7
		r.State.TotalDebt = decimal.NewFromInt(250)
		r.Phase = game.PhaseSpinning
		r.Pending = &pending
		r.UpdatedAt = now.Add(time.Second)
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.State.SpinsRemaining != 7 {
		t.Fatalf("update result spins = %d", updated.State.SpinsRemaining)
	}

	got, err = s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.State.SpinsRemaining != 7 || !got.State.TotalDebt.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("state not persisted: %+v", got.State)
	}
	if got.Phase != game.PhaseSpinning || got.Pending == nil || *got.Pending != pending {
		t.Fatalf("pending spin not persisted: %+v", got)
	}

	boom := errors.New("boom")
	_, err = s.Update(ctx, rec.ID, func(r *game.Record) error {
		r.State.SpinsRemaining = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("failing update: got %v", err)
	}
	got, _ = s.Get(ctx, rec.ID)
	if got.State.SpinsRemaining != 7 {
		t.Fatalf("failed update was committed: spins=%d", got.State.SpinsRemaining)
	}

	if _, err := s.Update(ctx, rec.ID, func(r *game.Record) error {
		r.Phase = game.PhaseIdle
		r.Pending = nil
		return nil
	}); err != nil {
		t.Fatalf("clear pending: %v", err)
	}
	got, _ = s.Get(ctx, rec.ID)
	if got.Pending != nil {
		t.Fatalf("pending not cleared")
	}

	stale := newRecord(now.Add(-48 * time.Hour))
	if err := s.Create(ctx, stale); err != nil {
		t.Fatalf("create stale: %v", err)
	}
	n, err := s.PruneIdle(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d want 1", n)
	}
	if _, err := s.Get(ctx, stale.ID); !errors.Is(err, game.ErrSessionNotFound) {
		t.Fatalf("stale session survived prune: %v", err)
	}
	if _, err := s.Get(ctx, rec.ID); err != nil {
		t.Fatalf("fresh session pruned: %v", err)
	}
}

func runConcurrentUpdates(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	rec := newRecord(time.Now().UTC())
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 8
	const perWorker = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := s.Update(ctx, rec.ID, func(r *game.Record) error {
					r.State.SpinsRemaining++
					return nil
				}); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent update: %v", err)
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State.SpinsRemaining != workers*perWorker {
		t.Fatalf("lost updates: spins=%d want %d", got.State.SpinsRemaining, workers*perWorker)
	}
}

func TestMemoryStore(t *testing.T) {
	runContract(t, NewMemory())
}

func TestMemoryStoreConcurrentUpdates(t *testing.T) {
	runConcurrentUpdates(t, NewMemory())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec := newRecord(time.Now())
	pending := game.SpinResult{}
	rec.Pending = &pending
	if err := m.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, _ := m.Get(ctx, rec.ID)
	got.Pending[0].Icon = 5
	again, _ := m.Get(ctx, rec.ID)
	if again.Pending[0].Icon != 0 {
		t.Fatalf("caller mutation leaked into the store")
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "reels.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer s.Close()
	runContract(t, s)
}

func TestSQLiteStoreConcurrentUpdates(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "reels.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer s.Close()
	runConcurrentUpdates(t, s)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("REELS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("REELS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, url, db.DefaultPoolOptions())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	s, err := NewPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		t.Fatalf("new postgres store: %v", err)
	}
	defer s.Close()
	if _, err := pool.Exec(ctx, "DELETE FROM reel_sessions"); err != nil {
		t.Fatalf("reset table: %v", err)
	}
	runContract(t, s)
	runConcurrentUpdates(t, s)
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "mongo"}); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("got %v want ErrUnknownDriver", err)
	}
}

func TestOpenDefaultsToMemory(t *testing.T) {
	s, err := Open(context.Background(), Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*Memory); !ok {
		t.Fatalf("got %T want *Memory", s)
	}
}

func TestJanitorPrunesIdleSessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now().UTC()

	stale := newRecord(now.Add(-2 * time.Hour))
	fresh := newRecord(now)
	for _, rec := range []game.Record{stale, fresh} {
		if err := m.Create(ctx, rec); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	j := NewJanitor(m, time.Hour, nil)
	j.now = func() time.Time { return now }
	n, err := j.RunOnce(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 || m.Len() != 1 {
		t.Fatalf("pruned %d, %d left", n, m.Len())
	}
	if _, err := m.Get(ctx, fresh.ID); err != nil {
		t.Fatalf("fresh session pruned: %v", err)
	}

	off := NewJanitor(m, 0, nil)
	if n, err := off.RunOnce(ctx); err != nil || n != 0 {
		t.Fatalf("disabled janitor pruned %d: %v", n, err)
	}
}
