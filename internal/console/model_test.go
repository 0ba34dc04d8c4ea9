package console

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"dispatch-copilot-service/internal/models"
)

type sentEvent struct {
	event string
	data  any
}

type testSender struct {
	sent []sentEvent
	err  error
}

func (s *testSender) SendEvent(event string, data any) error {
	s.sent = append(s.sent, sentEvent{event, data})
	return s.err
}

func newTestModel(s Sender) Model {
	m := New(s, make(chan tea.Msg))
	m.now = func() time.Time { return time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC) }
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestModel_RendersSuggestions(t *testing.T) {
	m := newTestModel(nil)
	age := 45
	m, _ = update(t, m, connectedMsg{clientID: "01J"})
	m, _ = update(t, m, suggestionsMsg{data: models.SuggestionsData{
		Summary:           []string{"• Not breathing", "Address 123 Oak Street"},
		Advice:            "Start CPR now",
		PatientAge:        &age,
		CriticalityLevel:  models.CriticalityCritical,
		ProcessedDialogue: [][2]string{{"caller", "He's not breathing"}},
	}})

	view := m.View()
	for _, want := range []string{"connected as 01J", "CRITICAL", "patient age 45", "Start CPR now", "• Not breathing", "• Address 123 Oak Street", "He's not breathing"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_KeepsRecentAdvice(t *testing.T) {
	m := newTestModel(nil)
	for i := range maxAdvice + 2 {
		m, _ = update(t, m, suggestionsMsg{data: models.SuggestionsData{Advice: string(rune('a' + i)), CriticalityLevel: "low"}})
	}
	if len(m.advice) != maxAdvice {
		t.Fatalf("expected %d advice entries, got %d", maxAdvice, len(m.advice))
	}
	if m.advice[0].text != "c" {
		t.Errorf("expected oldest kept entry 'c', got %q", m.advice[0].text)
	}

	// Empty advice updates the summary but not the history.
	m, _ = update(t, m, suggestionsMsg{data: models.SuggestionsData{Summary: []string{"x"}}})
	if len(m.advice) != maxAdvice {
		t.Errorf("empty advice should not be recorded")
	}
}

func TestModel_SubmitClientMessage(t *testing.T) {
	s := &testSender{}
	m := typeText(t, newTestModel(s), "units en route")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected send command")
	}
	if msg, ok := cmd().(sentMsg); !ok || msg.err != nil {
		t.Fatalf("unexpected result %#v", msg)
	}
	if len(s.sent) != 1 || s.sent[0].event != models.EventClientMessage {
		t.Fatalf("unexpected sends %+v", s.sent)
	}
	if got := s.sent[0].data.(map[string]string)["message"]; got != "units en route" {
		t.Errorf("unexpected message %q", got)
	}
	if m.input.Value() != "" {
		t.Error("expected input to be cleared")
	}
}

func TestModel_SubmitStatus(t *testing.T) {
	s := &testSender{}
	m := typeText(t, newTestModel(s), "/status on scene")

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	cmd()
	if len(s.sent) != 1 || s.sent[0].event != models.EventStatusUpdate {
		t.Fatalf("unexpected sends %+v", s.sent)
	}
	if got := s.sent[0].data.(map[string]string)["status"]; got != "on scene" {
		t.Errorf("unexpected status %q", got)
	}
}

func TestModel_SendErrorShown(t *testing.T) {
	m := newTestModel(&testSender{})
	m, _ = update(t, m, sentMsg{err: errors.New("hub client closed")})
	if !strings.Contains(m.View(), "send: hub client closed") {
		t.Error("expected send error in view")
	}
}

func TestModel_Disconnected(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, connectedMsg{clientID: "a"})
	m, _ = update(t, m, disconnectedMsg{err: errors.New("connection reset")})
	if m.connected {
		t.Error("expected disconnected state")
	}
	view := m.View()
	if !strings.Contains(view, "disconnected") || !strings.Contains(view, "connection reset") {
		t.Errorf("expected disconnect in view:\n%s", view)
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, msg tea.Msg)
	}{
		{
			name:  "welcome",
			frame: `{"event":"connection_established","data":{"message":"Connected","client_id":"abc","timestamp":1}}`,
			check: func(t *testing.T, msg tea.Msg) {
				if c, ok := msg.(connectedMsg); !ok || c.clientID != "abc" {
					t.Errorf("got %#v", msg)
				}
			},
		},
		{
			name:  "suggestions",
			frame: `{"event":"distribute_suggestions","data":{"advice":"Keep him still","criticality_level":"high","summary":[],"processed_dialogue":[["caller","help"]],"source":"ai_buffer_processor"}}`,
			check: func(t *testing.T, msg tea.Msg) {
				s, ok := msg.(suggestionsMsg)
				if !ok || s.data.Advice != "Keep him still" || len(s.data.ProcessedDialogue) != 1 {
					t.Errorf("got %#v", msg)
				}
			},
		},
		{
			name:  "client message",
			frame: `{"event":"client_message","data":{"from":"x","message":"hello","timestamp":1}}`,
			check: func(t *testing.T, msg tea.Msg) {
				if p, ok := msg.(peerMsg); !ok || p.text != "hello" || p.kind != "message" {
					t.Errorf("got %#v", msg)
				}
			},
		},
		{
			name:  "status object",
			frame: `{"event":"status_update","data":{"from":"x","status":{"status":"en route"},"timestamp":1}}`,
			check: func(t *testing.T, msg tea.Msg) {
				if p, ok := msg.(peerMsg); !ok || p.text != "en route" {
					t.Errorf("got %#v", msg)
				}
			},
		},
		{
			name:  "error",
			frame: `{"event":"error","data":{"message":"Invalid JSON format"}}`,
			check: func(t *testing.T, msg tea.Msg) {
				if e, ok := msg.(hubErrorMsg); !ok || e.text != "Invalid JSON format" {
					t.Errorf("got %#v", msg)
				}
			},
		},
		{
			name:  "pong dropped",
			frame: `{"event":"pong","data":{"timestamp":1}}`,
			check: func(t *testing.T, msg tea.Msg) {
				if msg != nil {
					t.Errorf("expected nil, got %#v", msg)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev models.InboundEvent
			if err := json.Unmarshal([]byte(tt.frame), &ev); err != nil {
				t.Fatal(err)
			}
			tt.check(t, translate(ev))
		})
	}
}

func TestForward(t *testing.T) {
	ch := make(chan tea.Msg, 1)
	h := Forward(ch)
	h.HandleEvent(models.InboundEvent{Event: models.EventError, Data: json.RawMessage(`{"message":"boom"}`)}, nil)
	h.HandleEvent(models.InboundEvent{Event: models.EventPong}, nil)

	if msg := <-ch; msg.(hubErrorMsg).text != "boom" {
		t.Errorf("unexpected %#v", msg)
	}
	if len(ch) != 0 {
		t.Error("pong should not be forwarded")
	}
}
