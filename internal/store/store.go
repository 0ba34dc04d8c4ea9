// Package store persists per-session conversation state.
//
// The synchronizer owns the in-memory view; a Store only ever sees whole
// snapshots, one outstanding write per session at a time.
package store

import (
	"context"
	"errors"
	"strings"
)

// Backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

var (
	// ErrEmptySession is returned for a blank session id.
	ErrEmptySession = errors.New("store: empty session id")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
	// ErrUnknownBackend is returned by callers selecting a backend by name.
	ErrUnknownBackend = errors.New("store: unknown backend")
)

// Store is the external persistence collaborator of the conversation synchronizer.
// Missing values load as the empty string.
type Store interface {
	SaveTranscript(ctx context.Context, sessionID, text string) error
	LoadTranscript(ctx context.Context, sessionID string) (string, error)
	SaveSummary(ctx context.Context, sessionID, summary string) error
	LoadSummary(ctx context.Context, sessionID string) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Close() error
}

func validSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrEmptySession
	}
	return nil
}
