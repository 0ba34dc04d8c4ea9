package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/service/buffer"
	"dispatch-copilot-service/internal/service/collector"
	"dispatch-copilot-service/internal/service/queue"
	"dispatch-copilot-service/internal/service/worker"
)

func TestRunner_ProcessesAndStopsCleanly(t *testing.T) {
	buf := buffer.New(10)
	q := queue.New[models.Batch]()
	col := collector.New(buf, q, collector.Config{SessionID: "call-1", Interval: 10 * time.Millisecond})

	var handled atomic.Int32
	pool := worker.New(q, worker.HandlerFunc(func(context.Context, string, models.Batch) error {
		handled.Add(1)
		return nil
	}), 2, "call-1")

	buf.Push(models.Fragment{Role: models.RoleCaller, Text: "hello"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRunner(col, pool).Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for handled.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("batch was not handled")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}
