package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/observability/logging"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultReadIdle     = 2 * time.Minute
	maxFrameBytes       = 64 << 10
)

// Sink receives interim-transcription events. The ingestor satisfies it.
type Sink interface {
	Ingest(origin string, ev models.InboundEvent) error
}

// GatewayConfig holds websocket settings for the hub endpoint.
type GatewayConfig struct {
	AllowedOrigins      []string
	InsecureSkipVerify  bool
	WriteTimeout        time.Duration
	ReadIdleTimeout     time.Duration
	RateEvents          float64
	RateBurst           int
	RelayTranscriptions bool
}

// Gateway is the websocket entrypoint of the hub. Each connection becomes a
// subscriber of the distributor for its lifetime.
type Gateway struct {
	dist           *Distributor
	sink           Sink
	cfg            GatewayConfig
	originPatterns []string
	logger         zerolog.Logger
	now            func() time.Time
}

// NewGateway creates a gateway. sink may be nil, in which case transcription
// events are only relayed.
func NewGateway(dist *Distributor, sink Sink, cfg GatewayConfig) *Gateway {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReadIdleTimeout <= 0 {
		cfg.ReadIdleTimeout = defaultReadIdle
	}
	if cfg.RateEvents <= 0 {
		cfg.RateEvents = float64(rate.Inf)
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	return &Gateway{
		dist:           dist,
		sink:           sink,
		cfg:            cfg,
		originPatterns: originPatterns(cfg.AllowedOrigins),
		logger:         logging.WithComponent("gateway"),
		now:            time.Now,
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.InsecureSkipVerify,
	})
	if err != nil {
		g.logger.Warn().Err(err).Str("remoteAddr", r.RemoteAddr).Msg("Websocket accept failed")
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()
	conn.SetReadLimit(maxFrameBytes)

	id, err := NewSubscriberID(g.now().UTC())
	if err != nil {
		g.logger.Error().Err(err).Msg("Subscriber id generation failed")
		_ = conn.Close(websocket.StatusInternalError, "id")
		return
	}
	sub := newWSSubscriber(id, conn, g.cfg.WriteTimeout)
	logger := logging.WithSubscriber(id, r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	welcome, _ := serverEvent(models.EventConnectionEstablished, welcomeData{
		Message:   welcomeMessage,
		ClientID:  id,
		Timestamp: millis(g.now()),
	})
	if err := sub.Send(ctx, welcome); err != nil {
		logger.Warn().Err(err).Msg("Welcome send failed")
		return
	}

	g.dist.Connect(sub)
	defer g.dist.Disconnect(id)

	limiter := rate.NewLimiter(rate.Limit(g.cfg.RateEvents), g.cfg.RateBurst)

	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		mt, data, err := conn.Read(readCtx)
		readCancel()
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose, readErrConnClosed:
				logger.Info().Msg("Subscriber disconnected")
			case readErrCtxDone:
				logger.Info().Msg("Subscriber idle or shutting down")
			default:
				logger.Warn().Err(err).Msg("Read failed")
			}
			return
		}
		if mt != websocket.MessageText {
			g.reply(ctx, sub, logger, models.EventError, errorData{Message: errMessageShape})
			continue
		}
		if !limiter.Allow() {
			logger.Warn().Msg("Event dropped by rate limit")
			g.reply(ctx, sub, logger, models.EventError, errorData{Message: errRateLimited})
			continue
		}
		g.handle(ctx, sub, logger, data)
	}
}

// handle routes one inbound text frame.
func (g *Gateway) handle(ctx context.Context, sub Subscriber, logger zerolog.Logger, data []byte) {
	var ev models.InboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		logger.Warn().Err(err).Msg("Invalid JSON from subscriber")
		g.reply(ctx, sub, logger, models.EventError, errorData{Message: errInvalidJSON})
		return
	}

	logger.Debug().Str("event", ev.Event).Msg("Event received")

	switch ev.Event {
	case models.EventInterimTranscription:
		if g.sink != nil {
			// Rejections are counted and logged by the sink.
			_ = g.sink.Ingest(sub.ID(), ev)
		}
		if g.cfg.RelayTranscriptions {
			g.dist.Broadcast(ctx, ev.Event, data, sub.ID())
		}

	case models.EventDistributeSuggestions, models.EventSuggestionsUpdate:
		if src := source(ev.Data); src != models.SourceProcessor {
			logger.Warn().Str("event", ev.Event).Str("source", src).Msg("Suggestions from unknown source ignored")
			return
		}
		g.dist.Broadcast(ctx, ev.Event, data, sub.ID())

	case models.EventClientMessage:
		g.relay(ctx, sub, ev.Event, clientMessageData{
			From:      sub.ID(),
			Message:   messageField(ev.Data),
			Timestamp: millis(g.now()),
		})

	case models.EventStatusUpdate:
		g.relay(ctx, sub, ev.Event, statusUpdateData{
			From:      sub.ID(),
			Status:    objectOrEmpty(ev.Data),
			Timestamp: millis(g.now()),
		})

	case models.EventPing:
		g.reply(ctx, sub, logger, models.EventPong, pongData{Timestamp: millis(g.now())})

	default:
		logger.Warn().Str("event", ev.Event).Msg("Unknown event type")
	}
}

func (g *Gateway) relay(ctx context.Context, from Subscriber, event string, data any) {
	b, err := serverEvent(event, data)
	if err != nil {
		g.logger.Error().Err(err).Str("event", event).Msg("Relay marshal failed")
		return
	}
	g.dist.Broadcast(ctx, event, b, from.ID())
}

// reply sends an event to one subscriber only.
func (g *Gateway) reply(ctx context.Context, sub Subscriber, logger zerolog.Logger, event string, data any) {
	b, err := serverEvent(event, data)
	if err != nil {
		logger.Error().Err(err).Str("event", event).Msg("Reply marshal failed")
		return
	}
	if err := sub.Send(ctx, b); err != nil {
		logger.Warn().Err(err).Str("event", event).Msg("Reply failed")
	}
}

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// originPatterns reduces allowed origins to the host patterns websocket.Accept
// matches against. Entries may be full origins or bare host patterns.
func originPatterns(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		host := a
		if strings.Contains(a, "://") {
			u, err := url.Parse(a)
			if err != nil || u.Host == "" {
				continue
			}
			host = u.Host
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	return out
}
