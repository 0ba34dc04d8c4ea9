// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger writing to stdout.
func Init(cfg Config) {
	InitWriter(cfg, os.Stdout)
}

// InitWriter initializes the global zerolog logger writing to w.
// The console binary points this at a file so log lines do not tear the TUI.
func InitWriter(cfg Config, w io.Writer) {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := w
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithSession returns a logger with session context.
func WithSession(component, sessionID string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Str("sessionId", sessionID).
		Logger()
}

// WithBatch returns a logger with batch context.
func WithBatch(sessionID, batchID string, fragments int) zerolog.Logger {
	return log.With().
		Str("sessionId", sessionID).
		Str("batchId", batchID).
		Int("fragments", fragments).
		Logger()
}

// WithWorker returns a logger with worker context.
func WithWorker(sessionID, workerID string) zerolog.Logger {
	return log.With().
		Str("component", "worker").
		Str("sessionId", sessionID).
		Str("workerId", workerID).
		Logger()
}

// WithSubscriber returns a logger with subscriber connection context.
func WithSubscriber(subscriberID, remoteAddr string) zerolog.Logger {
	return log.With().
		Str("component", "gateway").
		Str("subscriberId", subscriberID).
		Str("remoteAddr", remoteAddr).
		Logger()
}
