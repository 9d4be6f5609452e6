package store

import (
	"context"
	"log/slog"
	"time"
)

// Janitor removes sessions that have been idle for longer than ttl.
type Janitor struct {
	store Store
	ttl   time.Duration
	log   *slog.Logger
	now   func() time.Time
}

func NewJanitor(s Store, ttl time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{store: s, ttl: ttl, log: logger, now: time.Now}
}

func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	if j.ttl <= 0 {
		return 0, nil
	}
	cutoff := j.now().UTC().Add(-j.ttl)
	n, err := j.store.PruneIdle(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.log.Info("pruned idle sessions", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func (j *Janitor) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	j.log.Info("janitor started", "every", every.String(), "ttl", j.ttl.String())
	for {
		select {
		case <-ctx.Done():
			j.log.Info("janitor shutdown")
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.log.Error("prune failed", "err", err)
			}
		}
	}
}
