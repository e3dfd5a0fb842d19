// Package logging builds the application logger: JSON slog output with
// size-based rotation in production, human-readable stdout in development.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"tagstats/internal/config"
)

func level(cfg *config.Config) slog.Level {
	switch cfg.LogLevel {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelInfo:
		return slog.LevelInfo
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New creates a logger from the application configuration.
func New(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level(cfg)}

	if cfg.IsDevelopment() || cfg.IsTest() {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}

	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogsDirectory, cfg.AppName+".log"),
		MaxSize:    cfg.LogsMaxSizeInMb,
		MaxBackups: cfg.LogsMaxBackups,
		MaxAge:     cfg.LogsMaxAgeInDays,
		Compress:   true,
	}
	out := io.MultiWriter(os.Stdout, rotated)
	return slog.New(slog.NewJSONHandler(out, opts))
}
