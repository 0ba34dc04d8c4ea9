// Package pipeline turns a collected batch into a distributed suggestions
// event: consolidate, synchronize, retrieve, advise, emit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/observability/logging"
	"dispatch-copilot-service/internal/observability/metrics"
	"dispatch-copilot-service/internal/service/advisory"
	"dispatch-copilot-service/internal/service/batch"
	"dispatch-copilot-service/internal/service/consolidate"
	"dispatch-copilot-service/internal/service/conversation"
	"dispatch-copilot-service/internal/service/knowledge"
)

// ErrAdvisoryTimeout is returned when advice generation exceeds its bound.
var ErrAdvisoryTimeout = errors.New("advisory generation timed out")

const (
	defaultAdvisoryTimeout = 15 * time.Second
	defaultTurnsTimeout    = 2 * time.Second
)

// Config holds handler settings.
type Config struct {
	AdvisoryTimeout    time.Duration
	TopK               int
	ContextWindowBytes int
	Metrics            *metrics.Metrics

	// Turns is optional. It is written after the batch settles and never
	// delays emission; TurnsTimeout bounds each write.
	Turns        TurnRecorder
	TurnsTimeout time.Duration
}

// Handler processes one batch per call. It is safe for concurrent use by
// every worker of the pool.
type Handler struct {
	consolidator consolidate.Consolidator
	sync         *conversation.Synchronizer
	oracle       advisory.Oracle
	retriever    knowledge.Retriever
	emitter      Emitter
	cfg          Config
	now          func() time.Time
}

// NewHandler creates a handler. A nil retriever means no passages.
func NewHandler(
	c consolidate.Consolidator,
	s *conversation.Synchronizer,
	o advisory.Oracle,
	r knowledge.Retriever,
	e Emitter,
	cfg Config,
) *Handler {
	if cfg.AdvisoryTimeout <= 0 {
		cfg.AdvisoryTimeout = defaultAdvisoryTimeout
	}
	if cfg.TurnsTimeout <= 0 {
		cfg.TurnsTimeout = defaultTurnsTimeout
	}
	if r == nil {
		r = knowledge.None{}
	}
	return &Handler{
		consolidator: c,
		sync:         s,
		oracle:       o,
		retriever:    r,
		emitter:      e,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Handle runs the batch through every stage. External failures abandon the
// batch and are returned for the pool to log; they are never retried.
func (h *Handler) Handle(ctx context.Context, workerID string, b models.Batch) error {
	logger := logging.WithBatch(b.SessionID, b.ID, len(b.Fragments)).
		With().Str("workerId", workerID).Logger()

	lc := batch.NewLifecycle(b.ID)
	if err := lc.Start(); err != nil {
		return err
	}
	start := h.now()
	defer func() {
		h.cfg.Metrics.RecordBatchOutcome(lc.State().Outcome(), time.Since(start).Seconds())
	}()

	turns, err := h.consolidator.Consolidate(ctx, b.Fragments)
	if err != nil {
		lc.Abandon()
		return fmt.Errorf("consolidate: %w", err)
	}
	if len(turns) == 0 {
		logger.Debug().Msg("No turns consolidated")
		return lc.Finish(batch.StateEmpty)
	}
	h.cfg.Metrics.RecordTurns(len(turns))

	for _, t := range turns {
		h.sync.Append(ctx, t.Role, t.Text)
	}
	defer h.recordTurns(ctx, logger, b, turns)

	chunk, role := ChooseChunk(turns)

	passages, err := h.retriever.Retrieve(ctx, chunk, h.cfg.TopK)
	if err != nil {
		logger.Warn().Err(err).Msg("Knowledge retrieval failed, continuing without passages")
		passages = nil
	}

	summary, err := h.sync.Summary(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Summary read failed, using last known value")
	}

	advice, err := h.advise(ctx, advisory.Input{
		Chunk:       chunk,
		Role:        role,
		Summary:     summary,
		Transcript:  h.sync.Window(h.cfg.ContextWindowBytes),
		Passages:    passages,
		PriorAdvice: h.sync.PriorAdvice(),
	})
	if err != nil {
		lc.Abandon()
		return fmt.Errorf("advise: %w", err)
	}

	summaryText := conversation.FormatSummary(advice.Summary)
	if summaryText != "" {
		if _, err := h.sync.UpdateSummary(ctx, advice.Summary); err != nil {
			logger.Warn().Err(err).Msg("Summary write failed")
		}
	}

	if !h.sync.RecordAdvice(advice.Advice, summaryText) {
		h.cfg.Metrics.RecordSuppressed()
		logger.Debug().Msg("Advice repeats previous emission, not re-broadcast")
		return lc.Finish(batch.StateSuppressed)
	}

	ev := SuggestionsEvent(workerID, advice, turns)
	if err := h.emitter.Emit(ctx, b.Origin(), ev); err != nil {
		logger.Error().Err(err).Msg("Emit failed for at least one channel")
	}

	logger.Info().
		Int("turns", len(turns)).
		Str("criticality", advice.Criticality).
		Msg("Suggestions distributed")
	return lc.Finish(batch.StateEmitted)
}

// advise bounds the oracle call. The call is not interrupted on timeout; its
// result is discarded.
func (h *Handler) advise(ctx context.Context, in advisory.Input) (advisory.Advice, error) {
	type result struct {
		advice advisory.Advice
		err    error
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.AdvisoryTimeout)
	defer cancel()

	start := h.now()
	done := make(chan result, 1)
	go func() {
		a, err := h.oracle.Advise(ctx, in)
		done <- result{a, err}
	}()

	select {
	case r := <-done:
		timedOut := errors.Is(r.err, context.DeadlineExceeded)
		h.cfg.Metrics.RecordAdvisory(timedOut, time.Since(start).Seconds())
		if timedOut {
			return advisory.Advice{}, ErrAdvisoryTimeout
		}
		return r.advice, r.err
	case <-ctx.Done():
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		h.cfg.Metrics.RecordAdvisory(timedOut, time.Since(start).Seconds())
		if timedOut {
			return advisory.Advice{}, ErrAdvisoryTimeout
		}
		return advisory.Advice{}, ctx.Err()
	}
}

func (h *Handler) recordTurns(ctx context.Context, logger zerolog.Logger, b models.Batch, turns []models.Turn) {
	if h.cfg.Turns == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.TurnsTimeout)
	defer cancel()

	ev := models.TurnsEvent{
		EventType: models.EventTurnsConsolidated,
		SessionID: b.SessionID,
		BatchID:   b.ID,
		Turns:     pairs(turns),
		Timestamp: h.now().UnixMilli(),
	}
	if err := h.cfg.Turns.RecordTurns(ctx, ev); err != nil {
		logger.Warn().Err(err).Msg("Turn record failed")
	}
}

// ChooseChunk picks the utterance the advisory answers: the last caller turn,
// else the last turn of any role.
func ChooseChunk(turns []models.Turn) (string, models.Role) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == models.RoleCaller {
			return turns[i].Text, turns[i].Role
		}
	}
	if len(turns) == 0 {
		return "", models.RoleUnknown
	}
	last := turns[len(turns)-1]
	return last.Text, last.Role
}

// SuggestionsEvent builds the outbound distribution event.
func SuggestionsEvent(workerID string, a advisory.Advice, turns []models.Turn) models.SuggestionsEvent {
	summary := a.Summary
	if summary == nil {
		summary = []string{}
	}
	return models.SuggestionsEvent{
		Event: models.EventDistributeSuggestions,
		Data: models.SuggestionsData{
			Role:              "assistant",
			Summary:           summary,
			Advice:            a.Advice,
			PatientAge:        a.PatientAge,
			CriticalityLevel:  advisory.NormalizeCriticality(a.Criticality),
			ProcessedDialogue: pairs(turns),
			WorkerID:          workerID,
			Source:            models.SourceProcessor,
		},
	}
}

func pairs(turns []models.Turn) [][2]string {
	out := make([][2]string, len(turns))
	for i, t := range turns {
		out[i] = t.Pair()
	}
	return out
}
