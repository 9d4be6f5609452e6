package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jackpotreels/internal/api"
	"jackpotreels/internal/config"
	"jackpotreels/internal/db"
	"jackpotreels/internal/game"
	"jackpotreels/internal/metrics"
	"jackpotreels/internal/store"
	"jackpotreels/internal/stream"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(""); err != nil {
		slog.Error("load env file", "err", err)
		os.Exit(1)
	}
	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		logger.Error("load rules failed", "err", err)
		os.Exit(1)
	}

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

	hub := stream.NewHub(32, logger)
	gameSvc, err := game.NewService(sessions, game.Options{
		Rules:     rules,
		Random:    game.NewRandomSource(cfg.RNGSeed),
		Notifiers: []game.Notifier{hub, metrics.NewRecorder()},
		Logger:    logger,
	})
	if err != nil {
		logger.Error("game init failed", "err", err)
		os.Exit(1)
	}

	// The worker cannot reach an in-process store, so the API prunes it.
	if cfg.Store == store.DriverMemory && cfg.PruneEvery > 0 {
		go store.NewJanitor(sessions, cfg.SessionTTL, logger).Run(ctx, cfg.PruneEvery)
	}

	server := api.New(logger, gameSvc, hub)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("reels api listening", "addr", cfg.Addr, "store", cfg.Store)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
