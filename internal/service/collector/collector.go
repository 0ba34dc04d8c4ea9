// Package collector turns buffered fragments into time-sliced batches.
package collector

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/observability/logging"
	"dispatch-copilot-service/internal/observability/metrics"
	"dispatch-copilot-service/internal/service/batch"
	"dispatch-copilot-service/internal/service/buffer"
	"dispatch-copilot-service/internal/service/queue"
)

// DefaultInterval is the flush cadence used when none is configured.
const DefaultInterval = 5500 * time.Millisecond

// Collector drains the fragment buffer into the task queue on a fixed cadence.
type Collector struct {
	buf       *buffer.Buffer
	q         *queue.Queue[models.Batch]
	ids       *batch.Generator
	sessionID string
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
	timer     func(d time.Duration) (<-chan time.Time, func() bool)
}

func newTimer(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}

// Config holds collector construction parameters.
type Config struct {
	SessionID string
	Interval  time.Duration
	Metrics   *metrics.Metrics
}

// New creates a collector.
func New(buf *buffer.Buffer, q *queue.Queue[models.Batch], cfg Config) *Collector {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Collector{
		buf:       buf,
		q:         q,
		ids:       batch.NewGenerator(),
		sessionID: cfg.SessionID,
		interval:  interval,
		metrics:   cfg.Metrics,
		logger:    logging.WithSession("collector", cfg.SessionID),
		now:       time.Now,
		timer:     newTimer,
	}
}

// Run ticks until ctx is done. Wake times are computed from the previous
// scheduled wake, not from when the tick finished, so slow ticks do not drift.
func (c *Collector) Run(ctx context.Context) error {
	next := c.now().Add(c.interval)

	c.logger.Info().Dur("interval", c.interval).Msg("Collector started")

	for {
		fired, stop := c.timer(next.Sub(c.now()))
		select {
		case <-ctx.Done():
			stop()
			c.logger.Info().Msg("Collector stopped")
			return ctx.Err()
		case <-fired:
		}

		c.Flush()
		next = next.Add(c.interval)
	}
}

// Flush performs one tick immediately. It enqueues exactly one batch holding
// every buffered fragment and reports whether anything was enqueued.
func (c *Collector) Flush() bool {
	fragments := c.buf.DrainAll()
	if len(fragments) == 0 {
		return false
	}

	b := models.Batch{
		ID:          c.ids.Next(c.sessionID),
		SessionID:   c.sessionID,
		Fragments:   fragments,
		CollectedAt: c.now(),
	}
	c.q.Put(b)
	c.metrics.RecordBatchQueued(len(fragments), c.q.Len())

	c.logger.Debug().
		Str("batchId", b.ID).
		Int("fragments", len(fragments)).
		Msg("Batch enqueued")
	return true
}
