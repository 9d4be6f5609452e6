package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type APIConfig struct {
	Addr        string
	Store       string
	DatabaseURL string
	SQLitePath  string
	RulesFile   string
	SessionTTL  time.Duration
	PruneEvery  time.Duration
	RNGSeed     int64
	LogLevel    slog.Level
}

type WorkerConfig struct {
	Store       string
	DatabaseURL string
	SQLitePath  string
	SessionTTL  time.Duration
	PruneEvery  time.Duration
	RunOnce     bool
	LogLevel    slog.Level
}

type CLIConfig struct {
	APIBaseURL string
	SpinDelay  time.Duration
	RulesFile  string
}

// LoadDotEnv reads key=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("REELS_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:        addr,
		Store:       strings.ToLower(envDefault("REELS_STORE", "memory")),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:  envDefault("REELS_SQLITE_PATH", "reels.db"),
		RulesFile:   strings.TrimSpace(os.Getenv("REELS_RULES_FILE")),
		SessionTTL:  envDurationDefault("REELS_SESSION_TTL", 24*time.Hour),
		PruneEvery:  envDurationDefault("REELS_PRUNE_EVERY", 10*time.Minute),
		RNGSeed:     envInt64Default("REELS_RNG_SEED", 0),
		LogLevel:    ParseLogLevel(os.Getenv("REELS_LOG_LEVEL")),
	}
	if err := validateStore(cfg.Store, cfg.DatabaseURL); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		Store:       strings.ToLower(envDefault("REELS_STORE", "postgres")),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:  envDefault("REELS_SQLITE_PATH", "reels.db"),
		SessionTTL:  envDurationDefault("REELS_SESSION_TTL", 24*time.Hour),
		PruneEvery:  envDurationDefault("REELS_PRUNE_EVERY", 10*time.Minute),
		RunOnce:     envBoolDefault("REELS_WORKER_RUN_ONCE", false),
		LogLevel:    ParseLogLevel(os.Getenv("REELS_LOG_LEVEL")),
	}
	if cfg.Store == "memory" {
		return cfg, fmt.Errorf("the worker needs a durable store, REELS_STORE=memory has nothing to prune")
	}
	if err := validateStore(cfg.Store, cfg.DatabaseURL); err != nil {
		return cfg, err
	}
	if cfg.PruneEvery <= 0 {
		return cfg, fmt.Errorf("REELS_PRUNE_EVERY must be > 0")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("REELS_API_BASE_URL", "http://localhost:8080"), "/"),
		SpinDelay:  envDurationDefault("REELS_SPIN_DELAY", 1750*time.Millisecond),
		RulesFile:  strings.TrimSpace(os.Getenv("REELS_RULES_FILE")),
	}
}

func validateStore(driver, databaseURL string) error {
	switch driver {
	case "memory", "sqlite":
		return nil
	case "postgres":
		if databaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when REELS_STORE=postgres")
		}
		return nil
	default:
		return fmt.Errorf("REELS_STORE must be memory, postgres or sqlite, got %q", driver)
	}
}

func ParseLogLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
