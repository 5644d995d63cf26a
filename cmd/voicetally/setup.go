package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goodtune/voicetally/internal/config"
	"github.com/goodtune/voicetally/internal/storage"
	"github.com/goodtune/voicetally/internal/storage/cache"
	"github.com/goodtune/voicetally/internal/storage/redis"
	"github.com/goodtune/voicetally/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

// openStorage opens the configured backend and puts the record cache in front of it.
func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)

	switch cfg.Type {
	case "", "redis":
		store, err = redis.Open(cfg.Redis)
	case "sqlite":
		store, err = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	cached, err := cache.Wrap(store, cfg.CacheSize)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return cached, nil
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).Level(level).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
