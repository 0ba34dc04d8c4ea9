package app

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"dispatch-copilot-service/internal/config"
	"dispatch-copilot-service/internal/ingest"
	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/observability/logging"
	"dispatch-copilot-service/internal/observability/metrics"
	"dispatch-copilot-service/internal/service/buffer"
	"dispatch-copilot-service/internal/service/collector"
	"dispatch-copilot-service/internal/service/conversation"
	"dispatch-copilot-service/internal/service/pipeline"
	"dispatch-copilot-service/internal/service/queue"
	"dispatch-copilot-service/internal/service/worker"
	"dispatch-copilot-service/internal/store"
)

// Pipeline is the aggregation pipeline of one session, shared by the hub
// and the standalone processor.
type Pipeline struct {
	Buffer   *buffer.Buffer
	Queue    *queue.Queue[models.Batch]
	Ingestor *ingest.Ingestor
	Sync     *conversation.Synchronizer
	Runner   *pipeline.Runner
	Provider string

	store  store.Store
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPipeline builds the pipeline for cfg.Service.SessionID. Suggestions go
// to emitter; turns, when non-nil, records consolidated batches.
func NewPipeline(ctx context.Context, cfg *config.Config, m *metrics.Metrics, emitter pipeline.Emitter, turns pipeline.TurnRecorder) (*Pipeline, error) {
	logger := logging.WithSession("pipeline", cfg.Service.SessionID)

	var pool *pgxpool.Pool
	if needsPostgres(cfg) {
		var err error
		if pool, err = OpenPool(ctx, cfg.Store); err != nil {
			return nil, err
		}
	}

	closePool := func() {
		if pool != nil {
			pool.Close()
		}
	}

	st, err := OpenStore(ctx, cfg.Store, pool)
	if err != nil {
		closePool()
		return nil, err
	}

	retriever, err := NewRetriever(ctx, cfg.Knowledge, pool)
	if err != nil {
		_ = st.Close()
		closePool()
		return nil, err
	}

	stages, err := NewStages(ctx, cfg.LLM, m)
	if err != nil {
		_ = st.Close()
		closePool()
		return nil, err
	}

	buf := buffer.New(cfg.Pipeline.BufferCapacity)
	q := queue.New[models.Batch]()

	syncer := conversation.NewSynchronizer(st, conversation.Config{
		SessionID:      cfg.Service.SessionID,
		RollbackPolicy: cfg.Pipeline.RollbackPolicy,
		PersistTimeout: cfg.Pipeline.PersistTimeout,
		SummaryTTL:     cfg.Store.SummaryCacheTTL,
		PurgeOnClose:   cfg.Store.PurgeOnExit,
		Metrics:        m,
	})
	if err := syncer.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("Could not restore session state, starting empty")
	}

	handler := pipeline.NewHandler(stages.Consolidator, syncer, stages.Oracle, retriever, emitter, pipeline.Config{
		AdvisoryTimeout:    cfg.Pipeline.AdvisoryTimeout,
		TopK:               cfg.Knowledge.TopK,
		ContextWindowBytes: cfg.Pipeline.ContextWindowBytes,
		Metrics:            m,
		Turns:              turns,
	})

	col := collector.New(buf, q, collector.Config{
		SessionID: cfg.Service.SessionID,
		Interval:  cfg.Pipeline.FlushInterval,
		Metrics:   m,
	})
	workers := worker.New(q, handler, cfg.Pipeline.WorkerCount, cfg.Service.SessionID)

	logger.Info().
		Str("store", cfg.Store.Backend).
		Str("knowledge", cfg.Knowledge.Backend).
		Str("provider", stages.Provider).
		Str("rollbackPolicy", cfg.Pipeline.RollbackPolicy).
		Dur("flushInterval", cfg.Pipeline.FlushInterval).
		Int("workers", workers.Size()).
		Msg("Pipeline assembled")

	return &Pipeline{
		Buffer:   buf,
		Queue:    q,
		Ingestor: ingest.New(buf, m),
		Sync:     syncer,
		Runner:   pipeline.NewRunner(col, workers),
		Provider: stages.Provider,
		store:    st,
		pool:     pool,
		logger:   logger,
	}, nil
}

// Run blocks until ctx is cancelled and every worker has stopped.
func (p *Pipeline) Run(ctx context.Context) error {
	return p.Runner.Run(ctx)
}

// Drain flushes the buffer once and waits until every queued batch has been
// handled. Run must still be active. When ctx expires first the leftover
// fragments and batches are logged as abandoned.
func (p *Pipeline) Drain(ctx context.Context) error {
	p.Runner.Flush()
	if err := p.Queue.Join(ctx); err != nil {
		p.logger.Warn().
			Err(err).
			Int("abandonedFragments", p.Buffer.Len()).
			Int("abandonedBatches", p.Queue.Len()).
			Msg("Shutdown deadline passed before the pipeline drained")
		return err
	}
	p.logger.Info().Msg("Pipeline drained")
	return nil
}

// Close purges the session when configured and releases the backends.
// Call it only after Run has returned.
func (p *Pipeline) Close(ctx context.Context) error {
	var errs []error
	if err := p.Sync.Close(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("Session purge failed")
		errs = append(errs, err)
	}
	if err := p.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.pool != nil {
		p.pool.Close()
	}
	return errors.Join(errs...)
}
