// Package conversation owns the authoritative in-memory state of one call session.
package conversation

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"dispatch-copilot-service/internal/config"
	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/observability/logging"
	"dispatch-copilot-service/internal/observability/metrics"
	"dispatch-copilot-service/internal/store"
)

// DefaultPersistTimeout bounds one transcript write when none is configured.
const DefaultPersistTimeout = 10 * time.Second

// AppendResult reports what an Append call did.
type AppendResult int

const (
	// Committed - this call owned the write and the store accepted it.
	Committed AppendResult = iota
	// Coalesced - a write was in flight; the entry rides on its successor.
	Coalesced
	// RolledBack - this call owned the write, the store rejected it and
	// pending state was rolled back.
	RolledBack
)

func (r AppendResult) String() string {
	switch r {
	case Committed:
		return "committed"
	case Coalesced:
		return "coalesced"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of the synchronizer state.
type Snapshot struct {
	SessionID     string
	Pending       string
	Committed     string
	WriteInFlight bool
	Deferred      int
	PriorAdvice   string
}

// Config holds synchronizer construction parameters.
type Config struct {
	SessionID      string
	RollbackPolicy string // config.RollbackDiscard or config.RollbackPreserveTail
	PersistTimeout time.Duration
	SummaryTTL     time.Duration
	PurgeOnClose   bool
	Metrics        *metrics.Metrics
}

// Synchronizer coalesces concurrent transcript appends into at most one
// outstanding store write, rolling back in-memory state when a write fails.
// Safe for concurrent use.
type Synchronizer struct {
	store          store.Store
	sessionID      string
	policy         string
	persistTimeout time.Duration
	purgeOnClose   bool
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	summary        *SummaryCache

	mu            sync.Mutex
	committed     string
	pending       string
	inFlight      bool
	deferred      int
	priorAdvice   string
	priorSummary  string
	adviceEmitted bool
}

// NewSynchronizer creates the state for one session backed by st.
func NewSynchronizer(st store.Store, cfg Config) *Synchronizer {
	timeout := cfg.PersistTimeout
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}
	policy := cfg.RollbackPolicy
	if policy != config.RollbackPreserveTail {
		policy = config.RollbackDiscard
	}

	s := &Synchronizer{
		store:          st,
		sessionID:      cfg.SessionID,
		policy:         policy,
		persistTimeout: timeout,
		purgeOnClose:   cfg.PurgeOnClose,
		metrics:        cfg.Metrics,
		logger:         logging.WithSession("conversation", cfg.SessionID),
	}
	s.summary = NewSummaryCache(cfg.SummaryTTL, func(ctx context.Context) (string, error) {
		return st.LoadSummary(ctx, cfg.SessionID)
	}, cfg.Metrics)
	return s
}

// SessionID returns the session this state belongs to.
func (s *Synchronizer) SessionID() string {
	return s.sessionID
}

// Restore seeds committed and pending state from the store. Call before
// the first Append.
func (s *Synchronizer) Restore(ctx context.Context) error {
	text, err := s.store.LoadTranscript(ctx, s.sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.committed = text
	s.pending = text
	s.mu.Unlock()
	return nil
}

// Append records "role: text" and persists it. When a write is already in
// flight the entry is captured by that write's successor and Append returns
// Coalesced immediately. Store failures are logged, never returned.
func (s *Synchronizer) Append(ctx context.Context, role models.Role, text string) AppendResult {
	s.mu.Lock()
	s.pending += string(role) + ": " + text + "\n"
	if s.inFlight {
		s.deferred++
		s.mu.Unlock()
		s.metrics.RecordCoalesced()
		return Coalesced
	}
	s.inFlight = true
	staged := s.pending
	s.deferred = 0
	s.mu.Unlock()

	// The write outlives the caller's cancellation; only the persist timeout bounds it.
	writeCtx := context.WithoutCancel(ctx)

	for {
		err := s.persist(writeCtx, staged)

		s.mu.Lock()
		if err != nil {
			s.rollback(staged)
			s.inFlight = false
			s.deferred = 0
			s.mu.Unlock()

			s.logger.Error().
				Err(err).
				Str("policy", s.policy).
				Int("stagedBytes", len(staged)).
				Msg("Transcript write failed, rolled back")
			return RolledBack
		}

		s.committed = staged
		if s.deferred == 0 {
			s.inFlight = false
			s.mu.Unlock()
			return Committed
		}

		// Appends arrived during the write; stage them as its successor.
		s.logger.Debug().Int("deferred", s.deferred).Msg("Writing coalesced appends")
		staged = s.pending
		s.deferred = 0
		s.mu.Unlock()
	}
}

// rollback must be called with mu held. pending always extends staged
// because only the write owner rewrites it.
func (s *Synchronizer) rollback(staged string) {
	if s.policy == config.RollbackPreserveTail && strings.HasPrefix(s.pending, staged) {
		s.pending = s.committed + s.pending[len(staged):]
		return
	}
	s.pending = s.committed
}

func (s *Synchronizer) persist(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()

	start := time.Now()
	err := s.store.SaveTranscript(ctx, s.sessionID, text)
	s.metrics.RecordPersist(err, time.Since(start).Seconds())
	return err
}

// Read returns the latest in-memory transcript, including entries not yet persisted.
func (s *Synchronizer) Read() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Window returns at most maxBytes from the end of the transcript, cut at a
// line boundary when one exists and never inside a UTF-8 sequence.
func (s *Synchronizer) Window(maxBytes int) string {
	text := s.Read()
	if maxBytes <= 0 || len(text) <= maxBytes {
		return text
	}
	tail := text[len(text)-maxBytes:]
	if i := strings.IndexByte(tail, '\n'); i >= 0 && i+1 < len(tail) {
		return tail[i+1:]
	}
	for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
		tail = tail[1:]
	}
	return tail
}

// Committed returns the last transcript the store accepted.
func (s *Synchronizer) Committed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Snapshot returns a copy of the current state.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID:     s.sessionID,
		Pending:       s.pending,
		Committed:     s.committed,
		WriteInFlight: s.inFlight,
		Deferred:      s.deferred,
		PriorAdvice:   s.priorAdvice,
	}
}

// Summary returns the running summary through the read-through cache.
// On a failed refetch the last known value is returned with the error.
func (s *Synchronizer) Summary(ctx context.Context) (string, error) {
	return s.summary.Get(ctx)
}

// UpdateSummary stores items as bullet lines and refreshes the cache.
func (s *Synchronizer) UpdateSummary(ctx context.Context, items []string) (string, error) {
	text := FormatSummary(items)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()
	if err := s.store.SaveSummary(ctx, s.sessionID, text); err != nil {
		return text, err
	}
	s.summary.Set(text)
	return text, nil
}

// PriorAdvice returns the advice from the last emission.
func (s *Synchronizer) PriorAdvice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priorAdvice
}

// RecordAdvice stores advice and summary as the latest emission. It returns
// false, leaving state untouched, when both repeat the previous emission.
func (s *Synchronizer) RecordAdvice(advice, summary string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adviceEmitted && advice == s.priorAdvice && summary == s.priorSummary {
		return false
	}
	s.priorAdvice = advice
	s.priorSummary = summary
	s.adviceEmitted = true
	return true
}

// Close tears the session down, deleting its stored state when configured.
func (s *Synchronizer) Close(ctx context.Context) error {
	if !s.purgeOnClose {
		return nil
	}
	if err := s.store.DeleteSession(ctx, s.sessionID); err != nil {
		return err
	}
	s.logger.Info().Msg("Session state purged")
	return nil
}

// FormatSummary renders summary items as "• item" lines.
func FormatSummary(items []string) string {
	var b strings.Builder
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("• ")
		b.WriteString(item)
	}
	return b.String()
}
