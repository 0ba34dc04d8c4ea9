package store

import (
	"context"
	"sync"
)

type sessionRecord struct {
	transcript string
	summary    string
}

// MemoryStore keeps session state in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]sessionRecord
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]sessionRecord)}
}

func (s *MemoryStore) SaveTranscript(ctx context.Context, sessionID, text string) error {
	return s.update(ctx, sessionID, func(r *sessionRecord) { r.transcript = text })
}

func (s *MemoryStore) LoadTranscript(ctx context.Context, sessionID string) (string, error) {
	r, err := s.load(ctx, sessionID)
	return r.transcript, err
}

func (s *MemoryStore) SaveSummary(ctx context.Context, sessionID, summary string) error {
	return s.update(ctx, sessionID, func(r *sessionRecord) { r.summary = summary })
}

func (s *MemoryStore) LoadSummary(ctx context.Context, sessionID string) (string, error) {
	r, err := s.load(ctx, sessionID)
	return r.summary, err
}

func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := validSession(sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) update(ctx context.Context, sessionID string, fn func(*sessionRecord)) error {
	if err := validSession(sessionID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	r := s.sessions[sessionID]
	fn(&r)
	s.sessions[sessionID] = r
	return nil
}

func (s *MemoryStore) load(ctx context.Context, sessionID string) (sessionRecord, error) {
	if err := validSession(sessionID); err != nil {
		return sessionRecord{}, err
	}
	if err := ctx.Err(); err != nil {
		return sessionRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return sessionRecord{}, ErrClosed
	}
	return s.sessions[sessionID], nil
}
