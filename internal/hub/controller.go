package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tkoca/huddle/internal/core"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSController bridges browser clients to bus channels. Each client may
// subscribe to any number of channels and publish to any channel; the
// per-user channels carry the chat and call-signal envelopes.
type WSController struct {
	Bus core.SignalBus
}

func NewWSController(bus core.SignalBus) *WSController {
	return &WSController{Bus: bus}
}

// HandleHub upgrades the request and runs the read/write pumps until the
// client goes away.
func (ctl *WSController) HandleHub(ctx context.Context, c *gin.Context) {
	clientID := c.GetString("client_token")
	log.Info().Str("module", "hub").Str("client", clientID).Msg("new hub connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("ws upgrade")
		return
	}

	conn := &wsHubConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	ctx, cancel := context.WithCancel(ctx)

	sub := &subscriptions{cancels: make(map[string]func())}
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, clientID, conn, sub)
}

// subscriptions tracks one client's channel subscriptions; all are
// cancelled explicitly when the client disconnects.
type subscriptions struct {
	mu      sync.Mutex
	cancels map[string]func()
}

func (s *subscriptions) add(channel string, cancel func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cancels[channel]; ok {
		return false
	}
	s.cancels[channel] = cancel
	return true
}

func (s *subscriptions) remove(channel string) {
	s.mu.Lock()
	cancel, ok := s.cancels[channel]
	delete(s.cancels, channel)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *subscriptions) dropAll() {
	s.mu.Lock()
	cancels := make([]func(), 0, len(s.cancels))
	for _, fn := range s.cancels {
		cancels = append(cancels, fn)
	}
	s.cancels = make(map[string]func())
	s.mu.Unlock()
	for _, fn := range cancels {
		fn()
	}
}

func (ctl *WSController) writePump(ctx context.Context, c *wsHubConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "hub").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "hub").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *WSController) readPump(ctx context.Context, cancel context.CancelFunc, clientID string, c *wsHubConn, sub *subscriptions) {
	defer func() {
		log.Info().Str("module", "hub").Str("client", clientID).Msg("hub connection closing")
		sub.dropAll()
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.handleFrame(ctx, clientID, c, sub, data)
		}
	}
}

type hubFrame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (ctl *WSController) handleFrame(ctx context.Context, clientID string, c *wsHubConn, sub *subscriptions, data []byte) {
	var f hubFrame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("bad frame")
		return
	}

	switch f.Type {
	case "subscribe":
		ch, cancel := ctl.Bus.Subscribe(f.Channel)
		if !sub.add(f.Channel, cancel) {
			cancel()
			return
		}
		go ctl.forward(ctx, c, ch)
	case "unsubscribe":
		sub.remove(f.Channel)
	case "publish":
		_ = ctl.Bus.Publish(f.Channel, clientID, f.Payload)
	case "ping":
		b, _ := json.Marshal(map[string]string{"type": "pong"})
		_ = c.TrySend(b)
	default:
		log.Warn().Str("module", "hub").Str("type", f.Type).Msg("unknown frame")
	}
}

func (ctl *WSController) forward(ctx context.Context, c *wsHubConn, ch <-chan core.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			b, err := json.Marshal(env)
			if err != nil {
				log.Error().Err(err).Str("module", "hub").Msg("marshal envelope")
				continue
			}
			_ = c.TrySend(b)
		}
	}
}
