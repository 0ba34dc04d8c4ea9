package realtime

import (
	"encoding/json"
	"time"

	"dispatch-copilot-service/internal/models"
)

const welcomeMessage = "Connected to Emergency Dispatch Server"

type welcomeData struct {
	Message   string `json:"message"`
	ClientID  string `json:"client_id"`
	Timestamp int64  `json:"timestamp"`
}

type clientMessageData struct {
	From      string          `json:"from"`
	Message   json.RawMessage `json:"message"`
	Timestamp int64           `json:"timestamp"`
}

type statusUpdateData struct {
	From      string          `json:"from"`
	Status    json.RawMessage `json:"status"`
	Timestamp int64           `json:"timestamp"`
}

type pongData struct {
	Timestamp int64 `json:"timestamp"`
}

type errorData struct {
	Message string `json:"message"`
}

// Error strings sent back to a subscriber.
const (
	errInvalidJSON  = "Invalid JSON format"
	errRateLimited  = "Rate limit exceeded"
	errMessageShape = "Unsupported message type"
)

func serverEvent(event string, data any) ([]byte, error) {
	return json.Marshal(models.ServerEvent{Event: event, Data: data})
}

func millis(t time.Time) int64 { return t.UnixMilli() }

// messageField extracts data.message, or JSON null when absent.
func messageField(data json.RawMessage) json.RawMessage {
	var body struct {
		Message json.RawMessage `json:"message"`
	}
	if len(data) == 0 || json.Unmarshal(data, &body) != nil || len(body.Message) == 0 {
		return json.RawMessage("null")
	}
	return body.Message
}

// objectOrEmpty returns data, or an empty object when absent.
func objectOrEmpty(data json.RawMessage) json.RawMessage {
	if len(data) == 0 || string(data) == "null" {
		return json.RawMessage("{}")
	}
	return data
}

// source extracts data.source.
func source(data json.RawMessage) string {
	var body struct {
		Source string `json:"source"`
	}
	if len(data) == 0 || json.Unmarshal(data, &body) != nil {
		return ""
	}
	return body.Source
}
