// Package ws provides the gorilla-websocket transport to the gateway.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tkoca/huddle/internal/core"
	"github.com/tkoca/huddle/internal/gateway"
)

const writeDeadline = 5 * time.Second

// Dialer opens gateway connections negotiating the signaling sub-protocol.
type Dialer struct{}

func NewDialer() *Dialer { return &Dialer{} }

func (d *Dialer) Dial(ctx context.Context, url string) (core.Transport, error) {
	wd := websocket.Dialer{
		Subprotocols:     []string{gateway.Subprotocol},
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := wd.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

// wsTransport wraps one *websocket.Conn. Gorilla allows a single concurrent
// writer, so writes are serialized here; reads happen only from the session
// read loop.
type wsTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

func (t *wsTransport) WriteMessage(data core.Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) ReadMessage() (core.Frame, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
