package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGroq_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer gsk-test" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  [{\"role\":\"caller\",\"text\":\"hi\"}] "}}]}`))
	}))
	defer srv.Close()

	g, err := NewGroq("gsk-test", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewGroq: %v", err)
	}

	out, err := g.Complete(context.Background(), Request{
		Model:       "llama-3.3-70b-versatile",
		System:      "Always respond with valid JSON array only.",
		Prompt:      "Fragments:",
		Temperature: 0.1,
		MaxTokens:   500,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `[{"role":"caller","text":"hi"}]` {
		t.Errorf("unexpected content %q", out)
	}

	if got.Model != "llama-3.3-70b-versatile" || got.MaxTokens != 500 {
		t.Errorf("unexpected request %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
	if got.ResponseFormat != nil {
		t.Error("expected no response_format when JSON is not requested")
	}
}

func TestGroq_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	g, _ := NewGroq("gsk-test", WithBaseURL(srv.URL))
	_, err := g.Complete(context.Background(), Request{Prompt: "x"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Message != "rate limited" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if !apiErr.Retryable() {
		t.Error("expected 429 to be retryable")
	}
}

func TestGroq_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	g, _ := NewGroq("gsk-test", WithBaseURL(srv.URL))
	if _, err := g.Complete(context.Background(), Request{Prompt: "x"}); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestNewGroq_RequiresKey(t *testing.T) {
	if _, err := NewGroq(""); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}
