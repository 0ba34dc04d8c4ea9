// Package hubclient is a websocket client for the dispatch hub, used by the
// standalone processor, the console and the simulator.
package hubclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/observability/logging"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultWriteTimeout   = 5 * time.Second
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("hub client closed")

// Handler receives every decoded event read from the hub together with the raw frame.
type Handler interface {
	HandleEvent(ev models.InboundEvent, raw []byte)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev models.InboundEvent, raw []byte)

func (f HandlerFunc) HandleEvent(ev models.InboundEvent, raw []byte) { f(ev, raw) }

// Options configures Dial.
type Options struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	Header         http.Header
}

// Client is one connection to the hub. Sends are safe for concurrent use.
type Client struct {
	conn         *websocket.Conn
	url          string
	writeTimeout time.Duration
	logger       zerolog.Logger

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once

	idMu     sync.RWMutex
	clientID string
}

// Dial connects to the hub at url.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s (status %d): %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:         conn,
		url:          url,
		writeTimeout: opts.WriteTimeout,
		logger:       logging.WithComponent("hubclient").With().Str("url", url).Logger(),
	}
	c.logger.Info().Msg("Connected to hub")
	return c, nil
}

// ClientID returns the id the hub assigned in its welcome event, or "" when
// none has been received.
func (c *Client) ClientID() string {
	c.idMu.RLock()
	defer c.idMu.RUnlock()
	return c.clientID
}

// Run reads events until the connection closes or ctx is done. A normal
// close or cancellation returns nil.
func (c *Client) Run(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || c.closed.Load() ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}

		var ev models.InboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn().Err(err).Msg("Invalid JSON from hub dropped")
			continue
		}
		if ev.Event == models.EventConnectionEstablished {
			c.recordWelcome(ev.Data)
		}
		if h != nil {
			h.HandleEvent(ev, data)
		}
	}
}

func (c *Client) recordWelcome(data json.RawMessage) {
	var w struct {
		ClientID string `json:"client_id"`
	}
	if err := json.Unmarshal(data, &w); err != nil || w.ClientID == "" {
		return
	}
	c.idMu.Lock()
	c.clientID = w.ClientID
	c.idMu.Unlock()
	c.logger.Info().Str("clientId", w.ClientID).Msg("Hub welcome received")
}

// Send writes v as one JSON text frame.
func (c *Client) Send(v any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(v)
}

// SendEvent writes a server-style {event, data} envelope.
func (c *Client) SendEvent(event string, data any) error {
	return c.Send(models.ServerEvent{Event: event, Data: data})
}

// Emit sends a suggestions event to the hub, which relays it to every other
// subscriber. origin is ignored; the hub excludes this connection.
func (c *Client) Emit(_ context.Context, _ string, ev models.SuggestionsEvent) error {
	return c.Send(ev)
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
