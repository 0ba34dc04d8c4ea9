// Package ingest turns inbound transcription events into buffered fragments.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/observability/logging"
	"dispatch-copilot-service/internal/observability/metrics"
	"dispatch-copilot-service/internal/schema"
	"dispatch-copilot-service/internal/service/buffer"
)

// ErrMalformed is returned for payloads that are not a JSON event object.
var ErrMalformed = errors.New("malformed event")

// Ingestor validates events and pushes them into the fragment buffer.
type Ingestor struct {
	buf       *buffer.Buffer
	validator *schema.Validator
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates an ingestor feeding buf.
func New(buf *buffer.Buffer, m *metrics.Metrics) *Ingestor {
	return &Ingestor{
		buf:       buf,
		validator: schema.New(),
		metrics:   m,
		logger:    logging.WithComponent("ingest"),
		now:       time.Now,
	}
}

// Ingest buffers ev as a fragment delivered by origin. Invalid events are
// dropped, counted and returned as errors; the buffer is untouched.
func (i *Ingestor) Ingest(origin string, ev models.InboundEvent) error {
	if err := i.validator.Validate(ev); err != nil {
		i.metrics.RecordFragmentRejected(schema.Reason(err))
		i.logger.Warn().Err(err).Str("origin", origin).Msg("Event dropped")
		return err
	}

	f := Fragment(origin, ev, i.now())
	evicted, depth := i.buf.Push(f)
	i.metrics.RecordFragmentIngested(evicted, depth)

	i.logger.Debug().
		Str("origin", origin).
		Str("role", string(f.Role)).
		Int64("seq", f.SequenceNumber).
		Bool("evicted", evicted).
		Msg("Fragment buffered")
	return nil
}

// IngestRaw decodes data and ingests it.
func (i *Ingestor) IngestRaw(origin string, data []byte) error {
	var ev models.InboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		i.metrics.RecordFragmentRejected("bad_json")
		i.logger.Warn().Err(err).Str("origin", origin).Msg("Invalid JSON dropped")
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return i.Ingest(origin, ev)
}

// Fragment builds the fragment for ev.
func Fragment(origin string, ev models.InboundEvent, receivedAt time.Time) models.Fragment {
	f := models.Fragment{
		Role:       models.RoleUnknown,
		Text:       strings.TrimSpace(ev.Text),
		Origin:     origin,
		ReceivedAt: receivedAt,
	}
	if ev.Metadata != nil {
		f.Role = models.NormalizeRole(ev.Metadata.Role)
		f.SequenceNumber = ev.Metadata.SequenceNumber
		f.SourceTimestamp = ev.Metadata.Timestamp.Int()
	}
	return f
}
