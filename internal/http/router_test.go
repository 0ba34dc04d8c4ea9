package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dispatch-copilot-service/internal/app"
	"dispatch-copilot-service/internal/config"
)

func newTestApp(t *testing.T) *app.Application {
	t.Helper()
	cfg := config.Load()
	cfg.Service.SessionID = "call-router"
	cfg.Pipeline.Embedded = false
	cfg.Kafka.Enabled = false

	a, err := app.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestRouter_Health(t *testing.T) {
	a := newTestApp(t)
	h := NewRouter(a)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/liveness", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("liveness = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/readiness", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness before start = %d, want 503", rec.Code)
	}

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/readiness", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readiness after start = %d, want 200", rec.Code)
	}
}

func TestRouter_Session(t *testing.T) {
	a := newTestApp(t)
	rec := httptest.NewRecorder()
	NewRouter(a).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/session", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("session = %d, want 200", rec.Code)
	}
	var info app.SessionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.SessionID != "call-router" || info.Embedded {
		t.Errorf("unexpected session info %+v", info)
	}
}
