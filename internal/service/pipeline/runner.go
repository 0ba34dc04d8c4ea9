package pipeline

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"dispatch-copilot-service/internal/observability/logging"
	"dispatch-copilot-service/internal/service/collector"
	"dispatch-copilot-service/internal/service/worker"
)

// Runner drives the collector and the worker pool together.
type Runner struct {
	collector *collector.Collector
	pool      *worker.Pool
}

func NewRunner(c *collector.Collector, p *worker.Pool) *Runner {
	return &Runner{collector: c, pool: p}
}

// Run blocks until ctx is cancelled and both the collector and every worker
// have returned. Cancellation is a clean stop and yields nil.
func (r *Runner) Run(ctx context.Context) error {
	logger := logging.WithComponent("pipeline")
	logger.Info().Int("workers", r.pool.Size()).Msg("Pipeline started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.collector.Run(gctx) })
	g.Go(func() error { return r.pool.Run(gctx) })

	err := g.Wait()
	logger.Info().Msg("Pipeline stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Flush runs one collector tick now, outside the cadence.
func (r *Runner) Flush() bool {
	return r.collector.Flush()
}
