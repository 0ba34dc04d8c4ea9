package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Wire event names.
const (
	EventInterimTranscription  = "interim-transcription"
	EventDistributeSuggestions = "distribute_suggestions"
	EventSuggestionsUpdate     = "suggestions_update"
	EventConnectionEstablished = "connection_established"
	EventClientMessage         = "client_message"
	EventStatusUpdate          = "status_update"
	EventPing                  = "ping"
	EventPong                  = "pong"
	EventError                 = "error"
	EventTurnsConsolidated     = "turns_consolidated"
)

// SourceProcessor tags suggestion events produced by the aggregation pipeline.
const SourceProcessor = "ai_buffer_processor"

// Criticality levels carried by suggestion events.
const (
	CriticalityLow      = "low"
	CriticalityMedium   = "medium"
	CriticalityHigh     = "high"
	CriticalityCritical = "critical"
)

// InboundEvent is the envelope every peer sends. Only the fields relevant to
// Event are populated.
type InboundEvent struct {
	Event    string                 `json:"event"`
	Text     string                 `json:"text,omitempty"`
	Metadata *TranscriptionMetadata `json:"metadata,omitempty"`
	Data     json.RawMessage        `json:"data,omitempty"`
}

// TranscriptionMetadata describes an interim-transcription fragment.
type TranscriptionMetadata struct {
	Role           string      `json:"role"`
	Timestamp      DigitString `json:"timestamp"`
	SequenceNumber int64       `json:"sequenceNumber"`
}

// DigitString is a timestamp sent as a string of digits. Numeric JSON values
// are accepted too.
type DigitString string

// UnmarshalJSON implements json.Unmarshaler.
func (d *DigitString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = DigitString(s)
		return nil
	}
	*d = DigitString(b)
	return nil
}

// Int returns the numeric value, or 0 when the value is not all digits.
func (d DigitString) Int() int64 {
	s := string(d)
	if s == "" {
		return 0
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// SuggestionsEvent is the outbound distribution event.
type SuggestionsEvent struct {
	Event string          `json:"event"`
	Data  SuggestionsData `json:"data"`
}

// SuggestionsData is the payload of a distribute_suggestions event.
type SuggestionsData struct {
	Role              string      `json:"role"`
	Summary           []string    `json:"summary"`
	Advice            string      `json:"advice"`
	PatientAge        *int        `json:"patient_age"`
	CriticalityLevel  string      `json:"criticality_level"`
	ProcessedDialogue [][2]string `json:"processed_dialogue"`
	WorkerID          string      `json:"worker_id"`
	Source            string      `json:"source"`
}

// TurnsEvent records a consolidated batch on the event bus.
type TurnsEvent struct {
	EventType string      `json:"eventType"`
	SessionID string      `json:"sessionId"`
	BatchID   string      `json:"batchId"`
	Turns     [][2]string `json:"turns"`
	Timestamp int64       `json:"timestamp"`
}

// ServerEvent is the generic envelope for hub-originated events.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
