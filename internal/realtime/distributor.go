// Package realtime contains the websocket hub: the broadcast distributor and
// the gateway that speaks the hub protocol to subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/observability/logging"
	"dispatch-copilot-service/internal/observability/metrics"
)

// Subscriber is one live distribution channel.
type Subscriber interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
}

// Distributor fans events out to the live subscriber set.
//
// Membership changes only through Connect and Disconnect, and through the
// pruning of subscribers whose send failed during a Broadcast.
type Distributor struct {
	mu      sync.RWMutex
	subs    map[string]Subscriber
	order   []string
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewDistributor creates an empty distributor.
func NewDistributor(m *metrics.Metrics) *Distributor {
	return &Distributor{
		subs:    make(map[string]Subscriber),
		metrics: m,
		logger:  logging.WithComponent("distributor"),
	}
}

// Connect adds s to the live set. A subscriber with the same id is replaced.
func (d *Distributor) Connect(s Subscriber) {
	d.mu.Lock()
	if _, ok := d.subs[s.ID()]; !ok {
		d.order = append(d.order, s.ID())
	}
	d.subs[s.ID()] = s
	n := len(d.subs)
	d.mu.Unlock()

	d.metrics.RecordSubscribers(n)
	d.logger.Info().Str("subscriberId", s.ID()).Int("total", n).Msg("Subscriber connected")
}

// Disconnect removes the subscriber with id. Unknown ids are ignored.
func (d *Distributor) Disconnect(id string) {
	d.mu.Lock()
	removed := d.removeLocked(id)
	n := len(d.subs)
	d.mu.Unlock()

	if removed {
		d.metrics.RecordSubscribers(n)
		d.logger.Info().Str("subscriberId", id).Int("total", n).Msg("Subscriber removed")
	}
}

func (d *Distributor) removeLocked(id string) bool {
	if _, ok := d.subs[id]; !ok {
		return false
	}
	delete(d.subs, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of live subscribers.
func (d *Distributor) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Has reports whether id is in the live set. The answer is advisory.
func (d *Distributor) Has(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.subs[id]
	return ok
}

// Broadcast sends payload to every subscriber in the live set at call time
// except exclude, in connection order. Subscribers whose send fails are
// removed after the iteration. It returns the number of successful sends.
func (d *Distributor) Broadcast(ctx context.Context, event string, payload []byte, exclude string) int {
	d.mu.RLock()
	targets := make([]Subscriber, 0, len(d.order))
	for _, id := range d.order {
		if id == exclude {
			continue
		}
		targets = append(targets, d.subs[id])
	}
	d.mu.RUnlock()

	var failed []string
	delivered := 0
	for _, s := range targets {
		if err := s.Send(ctx, payload); err != nil {
			d.logger.Warn().Err(err).Str("subscriberId", s.ID()).Str("event", event).Msg("Send failed, pruning subscriber")
			failed = append(failed, s.ID())
			continue
		}
		delivered++
	}

	d.mu.Lock()
	for _, id := range failed {
		d.removeLocked(id)
	}
	n := len(d.subs)
	d.mu.Unlock()

	d.metrics.RecordBroadcast(event, delivered, len(failed), n)
	if delivered > 0 {
		d.logger.Debug().Str("event", event).Int("delivered", delivered).Msg("Broadcast sent")
	}
	return delivered
}

// BroadcastJSON marshals v and broadcasts it.
func (d *Distributor) BroadcastJSON(ctx context.Context, event string, v any, exclude string) (int, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", event, err)
	}
	return d.Broadcast(ctx, event, b, exclude), nil
}

// Emit broadcasts a suggestions event to everyone but origin.
func (d *Distributor) Emit(ctx context.Context, origin string, ev models.SuggestionsEvent) error {
	_, err := d.BroadcastJSON(ctx, ev.Event, ev, origin)
	return err
}
