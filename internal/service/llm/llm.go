// Package llm provides chat completion clients for the consolidation and
// advisory stages.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dispatch-copilot-service/internal/observability/metrics"
)

var (
	// ErrEmptyResponse is returned when a provider answers with no content.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrMissingAPIKey is returned when a provider is built without credentials.
	ErrMissingAPIKey = errors.New("llm: missing api key")
)

// Request is a single-turn completion request.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSON asks the provider for a JSON-only response when it supports it.
	JSON bool
}

// Completer produces the assistant text for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// APIError is a non-2xx provider response.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable reports whether the provider signalled a transient condition.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// Instrument wraps c with latency and error metrics labelled by provider and purpose.
func Instrument(c Completer, provider, purpose string, m *metrics.Metrics) Completer {
	if m == nil {
		return c
	}
	return CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		start := time.Now()
		out, err := c.Complete(ctx, req)
		m.RecordLLM(provider, purpose, err, time.Since(start).Seconds())
		return out, err
	})
}
