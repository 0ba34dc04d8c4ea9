// Package app wires the hub process: distributor, gateway, Kafka publisher
// and, when embedded, the aggregation pipeline.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dispatch-copilot-service/internal/config"
	"dispatch-copilot-service/internal/events"
	"dispatch-copilot-service/internal/observability/logging"
	"dispatch-copilot-service/internal/observability/metrics"
	"dispatch-copilot-service/internal/realtime"
	"dispatch-copilot-service/internal/service/pipeline"
)

// ErrNotStarted is reported by Ready before Start.
var ErrNotStarted = errors.New("application not started")

// Application holds process-wide state for the hub.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Metrics     *metrics.Metrics
	Distributor *realtime.Distributor
	Gateway     *realtime.Gateway
	Publisher   *events.Publisher

	// Pipeline is nil when the hub runs as a pure relay.
	Pipeline *Pipeline

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan error
}

// SessionInfo describes the live session for the session endpoint.
type SessionInfo struct {
	SessionID      string  `json:"sessionId"`
	Embedded       bool    `json:"embedded"`
	PendingBytes   int     `json:"pendingBytes"`
	CommittedBytes int     `json:"committedBytes"`
	WriteInFlight  bool    `json:"writeInFlight"`
	BufferDepth    int     `json:"bufferDepth"`
	QueueDepth     int     `json:"queueDepth"`
	Subscribers    int     `json:"subscribers"`
	UptimeSeconds  float64 `json:"uptimeSeconds"`
}

// New constructs the hub from cfg. m may be nil.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Application, error) {
	a := &Application{
		Cfg:     cfg,
		Metrics: m,
		Logger:  logging.WithComponent("application"),
	}

	a.Distributor = realtime.NewDistributor(m)
	a.Publisher = events.New(&events.Config{
		Enabled:          cfg.Kafka.Enabled,
		Brokers:          cfg.Kafka.Brokers,
		TopicSuggestions: cfg.Kafka.TopicSuggestions,
		TopicTurns:       cfg.Kafka.TopicTurns,
		Principal:        cfg.Kafka.Principal,
		SessionID:        cfg.Service.SessionID,
		Metrics:          m,
	})

	var sink realtime.Sink
	if cfg.Pipeline.Embedded {
		p, err := NewPipeline(ctx, cfg, m, pipeline.Fanout{a.Distributor, a.Publisher}, a.Publisher)
		if err != nil {
			_ = a.Publisher.Close()
			return nil, err
		}
		a.Pipeline = p
		sink = p.Ingestor
	}

	a.Gateway = realtime.NewGateway(a.Distributor, sink, realtime.GatewayConfig{
		AllowedOrigins:      cfg.Realtime.AllowedOrigins,
		InsecureSkipVerify:  cfg.Realtime.InsecureSkipVerify,
		WriteTimeout:        cfg.Realtime.WriteTimeout,
		ReadIdleTimeout:     cfg.Realtime.ReadIdleTimeout,
		RateEvents:          cfg.Realtime.RateEvents,
		RateBurst:           cfg.Realtime.RateBurst,
		RelayTranscriptions: cfg.Realtime.RelayTranscriptions,
	})

	a.Logger.Info().
		Str("sessionId", cfg.Service.SessionID).
		Bool("embedded", cfg.Pipeline.Embedded).
		Msg("Dispatch copilot application created")
	return a, nil
}

// Start launches the embedded pipeline.
func (a *Application) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	a.StartupTime = time.Now().UTC()
	a.started = true

	if a.Pipeline != nil {
		runCtx, cancel := context.WithCancel(ctx)
		a.cancel = cancel
		a.done = make(chan error, 1)
		go func() { a.done <- a.Pipeline.Run(runCtx) }()
	}

	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Dispatch copilot starting")
	return nil
}

// Ready reports whether the hub can take traffic.
func (a *Application) Ready(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return ErrNotStarted
	}
	return nil
}

// Session returns the live session state.
func (a *Application) Session() SessionInfo {
	info := SessionInfo{
		SessionID:   a.Cfg.Service.SessionID,
		Embedded:    a.Pipeline != nil,
		Subscribers: a.Distributor.Len(),
	}
	a.mu.Lock()
	if a.started {
		info.UptimeSeconds = time.Since(a.StartupTime).Seconds()
	}
	a.mu.Unlock()

	if a.Pipeline != nil {
		snap := a.Pipeline.Sync.Snapshot()
		info.PendingBytes = len(snap.Pending)
		info.CommittedBytes = len(snap.Committed)
		info.WriteInFlight = snap.WriteInFlight
		info.BufferDepth = a.Pipeline.Buffer.Len()
		info.QueueDepth = a.Pipeline.Queue.Len()
	}
	return info
}

// Shutdown drains buffered fragments through the pipeline, cancels the
// collector and every worker, waits for them to acknowledge, then releases
// backends. ctx bounds the whole sequence.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Logger.Info().Msg("Dispatch copilot shutting down")

	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	var errs []error
	if cancel != nil {
		if err := a.Pipeline.Drain(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			a.Logger.Warn().Msg("Pipeline did not stop before the shutdown deadline")
			errs = append(errs, ctx.Err())
		}
	}

	if a.Pipeline != nil {
		if err := a.Pipeline.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
