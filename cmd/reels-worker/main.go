package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"jackpotreels/internal/config"
	"jackpotreels/internal/db"
	"jackpotreels/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(""); err != nil {
		slog.Error("load env file", "err", err)
		os.Exit(1)
	}
	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	sessions, err := store.Open(ctx, store.Options{
		Driver:      cfg.Store,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		Pool:        db.DefaultPoolOptions(),
	})
	if err != nil {
		logger.Error("store open failed", "store", cfg.Store, "err", err)
		os.Exit(1)
	}
	defer sessions.Close()

	janitor := store.NewJanitor(sessions, cfg.SessionTTL, logger)
	if cfg.RunOnce {
		n, err := janitor.RunOnce(ctx)
		if err != nil {
			logger.Error("prune failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed", "pruned", n)
		return
	}

	janitor.Run(ctx, cfg.PruneEvery)
}
