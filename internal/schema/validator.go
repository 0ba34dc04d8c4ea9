// Package schema validates inbound transcription events before they reach the buffer.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"dispatch-copilot-service/internal/models"
)

var (
	ErrWrongEvent = errors.New("not an interim-transcription event")
	ErrEmptyText  = errors.New("empty fragment text")
)

// Validator checks interim-transcription events.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate returns nil when ev can become a fragment. Missing metadata is
// allowed; the fragment then carries the unknown role and zero ordering keys.
// Text length and sequence values are not policed: the buffer bounds memory
// and ordering keys are only compared, never trusted as counters.
func (v *Validator) Validate(ev models.InboundEvent) error {
	if ev.Event != models.EventInterimTranscription {
		return fmt.Errorf("%w: %q", ErrWrongEvent, ev.Event)
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return ErrEmptyText
	}
	return nil
}

// Reason maps a validation error to a short metric label.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrWrongEvent):
		return "wrong_event"
	case errors.Is(err, ErrEmptyText):
		return "empty_text"
	default:
		return "invalid"
	}
}
