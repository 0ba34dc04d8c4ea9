package realtime

import (
	"context"
	"time"

	"github.com/coder/websocket"
)

// wsSubscriber delivers payloads over one websocket connection.
type wsSubscriber struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func newWSSubscriber(id string, conn *websocket.Conn, writeTimeout time.Duration) *wsSubscriber {
	return &wsSubscriber{id: id, conn: conn, writeTimeout: writeTimeout}
}

func (s *wsSubscriber) ID() string { return s.id }

// Send writes payload as one text message, bounded by the write timeout.
func (s *wsSubscriber) Send(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, payload)
}
