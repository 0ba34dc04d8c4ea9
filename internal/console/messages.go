package console

import (
	"encoding/json"

	tea "github.com/charmbracelet/bubbletea"

	"dispatch-copilot-service/internal/hubclient"
	"dispatch-copilot-service/internal/models"
)

// Messages delivered to the model from the hub connection.
type (
	connectedMsg    struct{ clientID string }
	suggestionsMsg  struct{ data models.SuggestionsData }
	peerMsg         struct{ from, kind, text string }
	hubErrorMsg     struct{ text string }
	disconnectedMsg struct{ err error }
	sentMsg         struct{ err error }
)

// Forward returns a hub handler that converts hub events into model messages on out.
// Frames the console does not render are dropped.
func Forward(out chan<- tea.Msg) hubclient.Handler {
	return hubclient.HandlerFunc(func(ev models.InboundEvent, _ []byte) {
		if msg := translate(ev); msg != nil {
			out <- msg
		}
	})
}

func translate(ev models.InboundEvent) tea.Msg {
	switch ev.Event {
	case models.EventConnectionEstablished:
		var d struct {
			ClientID string `json:"client_id"`
		}
		_ = json.Unmarshal(ev.Data, &d)
		return connectedMsg{clientID: d.ClientID}
	case models.EventDistributeSuggestions, models.EventSuggestionsUpdate:
		var d models.SuggestionsData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return nil
		}
		return suggestionsMsg{data: d}
	case models.EventClientMessage:
		var d struct {
			From    string          `json:"from"`
			Message json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return nil
		}
		return peerMsg{from: d.From, kind: "message", text: plain(d.Message)}
	case models.EventStatusUpdate:
		var d struct {
			From   string          `json:"from"`
			Status json.RawMessage `json:"status"`
		}
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return nil
		}
		return peerMsg{from: d.From, kind: "status", text: plain(d.Status)}
	case models.EventError:
		var d struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(ev.Data, &d)
		return hubErrorMsg{text: d.Message}
	}
	return nil
}

// plain renders a JSON string as its value and anything else as compact JSON.
func plain(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var st struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &st); err == nil && st.Status != "" {
		return st.Status
	}
	return string(raw)
}

func waitMsg(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return msg
	}
}
