package batch

import (
	"errors"
	"sync"
	"testing"
)

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle("b-1")

	if lc.State() != StateQueued {
		t.Errorf("expected StateQueued, got %v", lc.State())
	}
	if lc.BatchID() != "b-1" {
		t.Errorf("expected batch id 'b-1', got %s", lc.BatchID())
	}
}

func TestLifecycle_HappyPath(t *testing.T) {
	lc := NewLifecycle("b-1")

	if err := lc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := lc.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
	if err := lc.Finish(StateEmitted); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if lc.State() != StateEmitted {
		t.Errorf("expected StateEmitted, got %v", lc.State())
	}
	if err := lc.Finish(StateEmpty); !errors.Is(err, ErrBatchFinished) {
		t.Errorf("expected ErrBatchFinished, got %v", err)
	}
}

func TestLifecycle_FinishRequiresProcessing(t *testing.T) {
	lc := NewLifecycle("b-1")
	if err := lc.Finish(StateEmitted); !errors.Is(err, ErrNotProcessing) {
		t.Errorf("expected ErrNotProcessing, got %v", err)
	}
}

func TestLifecycle_FinishRejectsNonTerminal(t *testing.T) {
	lc := NewLifecycle("b-1")
	_ = lc.Start()

	for _, to := range []State{StateQueued, StateProcessing, StateAbandoned} {
		if err := lc.Finish(to); err == nil {
			t.Errorf("expected error finishing into %v", to)
		}
	}
}

func TestLifecycle_Abandon(t *testing.T) {
	lc := NewLifecycle("b-1")

	if !lc.Abandon() {
		t.Error("expected Abandon to succeed from QUEUED")
	}
	if lc.Abandon() {
		t.Error("expected second Abandon to be a no-op")
	}
	if err := lc.Start(); !errors.Is(err, ErrBatchFinished) {
		t.Errorf("expected ErrBatchFinished after abandon, got %v", err)
	}
}

func TestLifecycle_ConcurrentAbandon(t *testing.T) {
	lc := NewLifecycle("b-1")
	_ = lc.Start()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lc.Abandon() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one successful Abandon, got %d", wins)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
		outcome  string
	}{
		{StateQueued, "QUEUED", "unfinished"},
		{StateProcessing, "PROCESSING", "unfinished"},
		{StateEmitted, "EMITTED", "emitted"},
		{StateEmpty, "EMPTY", "empty"},
		{StateSuppressed, "SUPPRESSED", "suppressed"},
		{StateAbandoned, "ABANDONED", "abandoned"},
		{State(99), "UNKNOWN(99)", "unfinished"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.expected)
		}
		if got := tt.state.Outcome(); got != tt.outcome {
			t.Errorf("State(%d).Outcome() = %s, want %s", tt.state, got, tt.outcome)
		}
	}
}
