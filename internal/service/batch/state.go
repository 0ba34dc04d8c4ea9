// Package batch provides batch id generation and per-batch lifecycle tracking.
package batch

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a batch.
type State int

const (
	// StateQueued - Batch is waiting in the task queue.
	StateQueued State = iota
	// StateProcessing - A worker owns the batch.
	StateProcessing
	// StateEmitted - Suggestions were distributed.
	StateEmitted
	// StateEmpty - Consolidation produced no turns; nothing to do.
	StateEmpty
	// StateSuppressed - Advisory repeated the previous emission and was not re-broadcast.
	StateSuppressed
	// StateAbandoned - An external call failed; the batch was dropped without retry.
	StateAbandoned
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateQueued:
		return "QUEUED"
	case StateProcessing:
		return "PROCESSING"
	case StateEmitted:
		return "EMITTED"
	case StateEmpty:
		return "EMPTY"
	case StateSuppressed:
		return "SUPPRESSED"
	case StateAbandoned:
		return "ABANDONED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Outcome is the metric label for a terminal state.
func (s State) Outcome() string {
	switch s {
	case StateEmitted:
		return "emitted"
	case StateEmpty:
		return "empty"
	case StateSuppressed:
		return "suppressed"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unfinished"
	}
}

// IsTerminal returns true once the batch has reached a final state.
func (s State) IsTerminal() bool {
	return s >= StateEmitted
}

// Errors for invalid state transitions.
var (
	ErrAlreadyStarted = errors.New("batch already started")
	ErrNotProcessing  = errors.New("batch is not processing")
	ErrBatchFinished  = errors.New("batch already finished")
)

// Lifecycle manages the state machine for a single batch.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	QUEUED → PROCESSING → EMITTED | EMPTY | SUPPRESSED | ABANDONED
//
// Abandon is accepted from any non-terminal state so a panic or
// cancellation can always park the batch.
type Lifecycle struct {
	mu      sync.RWMutex
	batchID string
	state   State
}

// NewLifecycle creates a batch lifecycle in QUEUED state.
func NewLifecycle(batchID string) *Lifecycle {
	return &Lifecycle{
		batchID: batchID,
		state:   StateQueued,
	}
}

// BatchID returns the batch ID.
func (l *Lifecycle) BatchID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.batchID
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Start transitions QUEUED to PROCESSING.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.state == StateQueued:
		l.state = StateProcessing
		return nil
	case l.state.IsTerminal():
		return ErrBatchFinished
	default:
		return ErrAlreadyStarted
	}
}

// Finish transitions PROCESSING to a terminal state other than ABANDONED.
func (l *Lifecycle) Finish(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return ErrBatchFinished
	}
	if l.state != StateProcessing {
		return ErrNotProcessing
	}
	if !to.IsTerminal() || to == StateAbandoned {
		return fmt.Errorf("invalid finish state: %v", to)
	}
	l.state = to
	return nil
}

// Abandon moves the batch to ABANDONED.
// Returns false if the batch was already in a terminal state.
func (l *Lifecycle) Abandon() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateAbandoned
	return true
}
