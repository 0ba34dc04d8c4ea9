package pipeline

import (
	"context"
	"errors"

	"dispatch-copilot-service/internal/models"
)

// Emitter distributes a suggestions event produced for a batch that arrived
// from origin.
type Emitter interface {
	Emit(ctx context.Context, origin string, ev models.SuggestionsEvent) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, origin string, ev models.SuggestionsEvent) error

func (f EmitterFunc) Emit(ctx context.Context, origin string, ev models.SuggestionsEvent) error {
	return f(ctx, origin, ev)
}

// Fanout emits to every emitter in order. One failing emitter does not stop
// the others.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, origin string, ev models.SuggestionsEvent) error {
	var errs []error
	for _, e := range f {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, origin, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TurnRecorder records consolidated turns, e.g. on the event bus.
type TurnRecorder interface {
	RecordTurns(ctx context.Context, ev models.TurnsEvent) error
}
