// Command processor runs the aggregation pipeline outside the hub. It
// connects as a hub subscriber, ingests the transcription fragments the hub
// relays and posts suggestions back for distribution.
//
// Run the hub with PIPELINE_EMBEDDED=false and WS_RELAY_TRANSCRIPTIONS=true.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"dispatch-copilot-service/internal/app"
	"dispatch-copilot-service/internal/config"
	"dispatch-copilot-service/internal/events"
	"dispatch-copilot-service/internal/hubclient"
	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/observability"
	"dispatch-copilot-service/internal/observability/logging"
	"dispatch-copilot-service/internal/observability/metrics"
	"dispatch-copilot-service/internal/service/pipeline"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})
	logger := logging.WithSession("processor", cfg.Service.SessionID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := hubclient.Dial(ctx, cfg.Realtime.HubURL, hubclient.Options{WriteTimeout: cfg.Realtime.WriteTimeout})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to hub")
	}

	publisher := events.New(&events.Config{
		Enabled:          cfg.Kafka.Enabled,
		Brokers:          cfg.Kafka.Brokers,
		TopicSuggestions: cfg.Kafka.TopicSuggestions,
		TopicTurns:       cfg.Kafka.TopicTurns,
		Principal:        cfg.Kafka.Principal,
		SessionID:        cfg.Service.SessionID,
		Metrics:          metrics.DefaultMetrics,
	})
	defer publisher.Close()

	p, err := app.NewPipeline(ctx, cfg, metrics.DefaultMetrics, pipeline.Fanout{client, publisher}, publisher)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build pipeline")
	}

	obs := observability.NewServer(cfg.Observability.MetricsAddr, nil)
	obs.Start()

	// The pipeline outlives the signal so buffered fragments can drain
	// while the hub connection is still up.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return p.Run(gctx) })
	g.Go(func() error {
		defer stop()
		return client.Run(gctx, hubclient.HandlerFunc(func(ev models.InboundEvent, _ []byte) {
			if ev.Event != models.EventInterimTranscription {
				return
			}
			// Fragments relayed by the hub arrive unwrapped; the origin is
			// this connection, which the hub excludes from the relay.
			_ = p.Ingestor.Ingest(client.ClientID(), ev)
		}))
	})

	logger.Info().Str("hub", cfg.Realtime.HubURL).Str("provider", p.Provider).Msg("Processor running")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.Drain(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Pipeline drain incomplete")
	}
	cancelRun()

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error().Err(runErr).Msg("Processor stopped with error")
	}

	if err := p.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Pipeline close incomplete")
	}
	_ = client.Close()
	_ = obs.Shutdown(shutdownCtx)
	logger.Info().Msg("Processor stopped")
}
