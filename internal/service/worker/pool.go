// Package worker runs a fixed set of batch processors over the task queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/observability/logging"
	"dispatch-copilot-service/internal/service/queue"
)

// DefaultSize is the number of workers started when none is configured.
const DefaultSize = 3

// Handler processes one batch end to end. workerID identifies the worker
// that owns the batch. Errors are logged by the pool and never stop it.
type Handler interface {
	Handle(ctx context.Context, workerID string, b models.Batch) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, workerID string, b models.Batch) error

func (f HandlerFunc) Handle(ctx context.Context, workerID string, b models.Batch) error {
	return f(ctx, workerID, b)
}

// ErrPanic wraps a panic recovered while handling a batch.
var ErrPanic = errors.New("panic while handling batch")

// Pool is a fixed-size worker pool.
type Pool struct {
	q         *queue.Queue[models.Batch]
	handler   Handler
	size      int
	sessionID string
}

// New creates a pool of size workers.
func New(q *queue.Queue[models.Batch], handler Handler, size int, sessionID string) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{q: q, handler: handler, size: size, sessionID: sessionID}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Run starts the workers and blocks until every one of them has observed
// cancellation of ctx and returned.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		g.Go(func() error {
			return p.loop(gctx, workerID)
		})
	}
	return g.Wait()
}

func (p *Pool) loop(ctx context.Context, workerID string) error {
	logger := logging.WithWorker(p.sessionID, workerID)
	logger.Debug().Msg("Worker started")

	for {
		b, err := p.q.Get(ctx)
		if err != nil {
			logger.Debug().Msg("Worker stopped")
			return err
		}
		p.process(ctx, logger, workerID, b)
	}
}

func (p *Pool) process(ctx context.Context, logger zerolog.Logger, workerID string, b models.Batch) {
	defer p.q.Done()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
			}
		}()
		return p.handler.Handle(ctx, workerID, b)
	}()

	if err != nil {
		logger.Error().
			Err(err).
			Str("batchId", b.ID).
			Int("fragments", len(b.Fragments)).
			Msg("Batch failed")
	}
}
