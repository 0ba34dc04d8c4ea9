package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"dispatch-copilot-service/internal/config"
	"dispatch-copilot-service/internal/observability/metrics"
	"dispatch-copilot-service/internal/service/advisory"
	"dispatch-copilot-service/internal/service/consolidate"
	"dispatch-copilot-service/internal/service/knowledge"
	"dispatch-copilot-service/internal/service/llm"
	"dispatch-copilot-service/internal/store"
)

// ErrMissingDatabaseURL is returned when a Postgres backend is selected without DATABASE_URL.
var ErrMissingDatabaseURL = errors.New("postgres backend selected but DATABASE_URL is empty")

// Stages are the two model-backed pipeline stages.
type Stages struct {
	Provider     string
	Consolidator consolidate.Consolidator
	Oracle       advisory.Oracle
}

// NewStages builds the consolidator and oracle for the configured provider.
// The offline provider uses deterministic local implementations.
func NewStages(ctx context.Context, cfg config.LLMConfig, m *metrics.Metrics) (Stages, error) {
	var c llm.Completer
	consModel, adviseModel := cfg.ConsolidationModel, cfg.AdvisoryModel

	switch cfg.Provider {
	case config.ProviderGroq:
		g, err := llm.NewGroq(cfg.GroqAPIKey, llm.WithBaseURL(cfg.GroqBaseURL))
		if err != nil {
			return Stages{}, err
		}
		c = g
	case config.ProviderGemini:
		g, err := llm.NewGemini(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return Stages{}, err
		}
		c = g
		consModel, adviseModel = cfg.GeminiModel, cfg.GeminiModel
	default:
		log.Warn().Msg("No LLM provider configured, running offline consolidation and advisory")
		return Stages{
			Provider:     config.ProviderOffline,
			Consolidator: consolidate.Concatenator{},
			Oracle:       advisory.Echo{},
		}, nil
	}

	log.Info().
		Str("provider", cfg.Provider).
		Str("consolidationModel", consModel).
		Str("advisoryModel", adviseModel).
		Msg("LLM stages configured")

	return Stages{
		Provider:     cfg.Provider,
		Consolidator: consolidate.NewLLMConsolidator(llm.Instrument(c, cfg.Provider, "consolidation", m), consModel),
		Oracle:       advisory.NewLLMOracle(llm.Instrument(c, cfg.Provider, "advisory", m), adviseModel),
	}, nil
}

// needsPostgres reports whether any backend requires a database pool.
func needsPostgres(cfg *config.Config) bool {
	return cfg.Store.Backend == store.BackendPostgres || cfg.Knowledge.Backend == knowledge.BackendPostgres
}

// OpenPool opens and migrates the shared Postgres pool.
func OpenPool(ctx context.Context, cfg config.StoreConfig) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.MaxConns)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info().Int("maxConns", cfg.MaxConns).Msg("Postgres pool ready")
	return pool, nil
}

// OpenStore selects the conversation state backend. pool is required for postgres.
func OpenStore(ctx context.Context, cfg config.StoreConfig, pool *pgxpool.Pool) (store.Store, error) {
	switch cfg.Backend {
	case "", store.BackendMemory:
		return store.NewMemoryStore(), nil
	case store.BackendPostgres:
		return store.NewPostgresStore(pool)
	case store.BackendRedis:
		st, err := store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisSessionTTL)
		if err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownBackend, cfg.Backend)
	}
}

// NewRetriever selects the guideline retriever. The postgres backend is
// seeded with the built-in passages when its table is empty.
func NewRetriever(ctx context.Context, cfg config.KnowledgeConfig, pool *pgxpool.Pool) (knowledge.Retriever, error) {
	switch cfg.Backend {
	case knowledge.BackendNone:
		return knowledge.None{}, nil
	case "", knowledge.BackendStatic:
		return knowledge.NewStatic(knowledge.DefaultPassages), nil
	case knowledge.BackendPostgres:
		r, err := knowledge.NewPostgres(pool)
		if err != nil {
			return nil, err
		}
		seeded, err := r.SeedIfEmpty(ctx, knowledge.DefaultPassages)
		if err != nil {
			return nil, fmt.Errorf("seed guidelines: %w", err)
		}
		if seeded {
			log.Info().Int("passages", len(knowledge.DefaultPassages)).Msg("Guideline table seeded")
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown knowledge backend %q", cfg.Backend)
	}
}
