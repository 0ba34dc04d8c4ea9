package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/service/buffer"
	"dispatch-copilot-service/internal/service/queue"
)

func newTestCollector(interval time.Duration) (*Collector, *buffer.Buffer, *queue.Queue[models.Batch]) {
	buf := buffer.New(100)
	q := queue.New[models.Batch]()
	return New(buf, q, Config{SessionID: "call-1", Interval: interval}), buf, q
}

func TestCollector_FlushEnqueuesOneBatch(t *testing.T) {
	c, buf, q := newTestCollector(time.Hour)

	for i := int64(1); i <= 3; i++ {
		buf.Push(models.Fragment{Role: models.RoleCaller, Text: "x", SequenceNumber: i})
	}

	if !c.Flush() {
		t.Fatal("expected Flush to enqueue a batch")
	}
	if buf.Len() != 0 {
		t.Errorf("expected empty buffer after flush, got %d", buf.Len())
	}
	if q.Len() != 1 {
		t.Fatalf("expected one batch queued, got %d", q.Len())
	}

	b, err := q.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(b.Fragments) != 3 {
		t.Errorf("expected 3 fragments in batch, got %d", len(b.Fragments))
	}
	if b.ID != "call-1-batch-1" || b.SessionID != "call-1" {
		t.Errorf("unexpected batch identity %q/%q", b.ID, b.SessionID)
	}
}

func TestCollector_NoEmptyBatches(t *testing.T) {
	c, _, q := newTestCollector(time.Hour)

	if c.Flush() {
		t.Error("expected no batch from an empty buffer")
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestCollector_RunTicks(t *testing.T) {
	c, buf, q := newTestCollector(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	buf.Push(models.Fragment{Role: models.RoleCaller, Text: "My husband", SequenceNumber: 1})
	buf.Push(models.Fragment{Role: models.RoleCaller, Text: "collapsed", SequenceNumber: 2})

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	getCtx, getCancel := context.WithTimeout(context.Background(), time.Second)
	defer getCancel()
	b, err := q.Get(getCtx)
	if err != nil {
		t.Fatalf("no batch produced: %v", err)
	}
	if len(b.Fragments) != 2 {
		t.Errorf("expected both fragments in one batch, got %d", len(b.Fragments))
	}

	// Idle ticks never enqueue.
	time.Sleep(60 * time.Millisecond)
	if q.Len() != 0 {
		t.Errorf("expected no batches from idle ticks, got %d", q.Len())
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

// fakeClock hands every timer request to the test, which decides when it
// fires and what time it is when it does.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time

	requests chan time.Duration
	fire     chan time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{cur: start, requests: make(chan time.Duration), fire: make(chan time.Time)}
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

func (f *fakeClock) set(t time.Time) {
	f.mu.Lock()
	f.cur = t
	f.mu.Unlock()
}

func (f *fakeClock) timer(d time.Duration) (<-chan time.Time, func() bool) {
	f.requests <- d
	return f.fire, func() bool { return true }
}

func TestCollector_RunDoesNotDrift(t *testing.T) {
	const interval = 100 * time.Millisecond
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	c, buf, q := newTestCollector(interval)
	clk := newFakeClock(start)
	c.now = clk.now
	c.timer = clk.timer

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Each tick wakes late by a different amount; the next wake must still
	// land on start + k*interval.
	lateness := []time.Duration{0, 30 * time.Millisecond, 90 * time.Millisecond, 5 * time.Millisecond, 60 * time.Millisecond}
	for k, late := range lateness {
		var d time.Duration
		select {
		case d = <-clk.requests:
		case <-time.After(time.Second):
			t.Fatalf("tick %d: no timer requested", k)
		}

		want := start.Add(time.Duration(k+1) * interval)
		if got := clk.now().Add(d); !got.Equal(want) {
			t.Errorf("tick %d: scheduled wake %v, want %v", k, got.Sub(start), want.Sub(start))
		}

		buf.Push(models.Fragment{Role: models.RoleCaller, Text: "x", SequenceNumber: int64(k + 1)})
		clk.set(want.Add(late))
		clk.fire <- clk.now()
	}

	// The final request follows the last flush.
	select {
	case <-clk.requests:
	case <-time.After(time.Second):
		t.Fatal("no timer requested after the last tick")
	}
	if q.Len() != len(lateness) {
		t.Errorf("expected %d batches, got %d", len(lateness), q.Len())
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
