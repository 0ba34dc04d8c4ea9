// Package models defines the data structures that flow through the aggregation pipeline.
package models

import (
	"strings"
	"time"
)

// Role is the speaker role attached to a fragment or a consolidated turn.
type Role string

const (
	RoleCaller     Role = "caller"
	RoleDispatcher Role = "dispatcher"
	RoleUnknown    Role = "unknown"
)

// NormalizeRole maps a wire role onto the closed role set.
// "agent" is the transcription source's name for the dispatcher.
func NormalizeRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "caller":
		return RoleCaller
	case "dispatcher", "agent":
		return RoleDispatcher
	default:
		return RoleUnknown
	}
}

// Fragment is one raw, possibly partial piece of transcribed speech.
// Fragments are immutable after ingestion.
type Fragment struct {
	Role            Role
	Text            string
	SequenceNumber  int64
	SourceTimestamp int64

	// Origin is the subscriber id of the connection that delivered the fragment.
	Origin     string
	ReceivedAt time.Time
}

// Batch is every fragment collected within one flush window, in arrival order.
type Batch struct {
	ID          string
	SessionID   string
	Fragments   []Fragment
	CollectedAt time.Time
}

// Origin returns the connection that delivered the most recent fragment of the batch.
func (b Batch) Origin() string {
	if len(b.Fragments) == 0 {
		return ""
	}
	return b.Fragments[len(b.Fragments)-1].Origin
}

// Turn is one consolidated speaker turn.
type Turn struct {
	Role Role
	Text string
}

// Pair renders the turn in the [role, text] wire shape.
func (t Turn) Pair() [2]string {
	return [2]string{string(t.Role), t.Text}
}
