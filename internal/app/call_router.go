package app

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tkoca/huddle/internal/core"
	"github.com/tkoca/huddle/internal/domain"
)

// CallChannel is the per-user bus channel carrying call signals addressed
// to that user.
func CallChannel(userID domain.UserID) string {
	return fmt.Sprintf("video-call:%s", userID)
}

// CallRouter routes one-to-one call signals over the bus. Each user owns
// one inbound channel; signals name their sender, and the router hands
// them to the handler bound for that sender. Signals from peers without a
// bound handler are dropped (delivery is at-most-once).
type CallRouter struct {
	bus   core.SignalBus
	self  domain.UserID
	clock core.Clock
	log   zerolog.Logger

	mu       sync.Mutex
	handlers map[domain.UserID]func(domain.CallSignal)
	cancel   func()
}

func NewCallRouter(bus core.SignalBus, self domain.UserID, clock core.Clock) *CallRouter {
	return &CallRouter{
		bus:      bus,
		self:     self,
		clock:    clock,
		log:      log.With().Str("module", "calls").Str("user", string(self)).Logger(),
		handlers: make(map[domain.UserID]func(domain.CallSignal)),
	}
}

// Start subscribes to this user's call channel and begins routing.
func (r *CallRouter) Start() {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	ch, cancel := r.bus.Subscribe(CallChannel(r.self))
	r.cancel = cancel
	r.mu.Unlock()

	go r.loop(ch)
}

// Stop unsubscribes; the routing loop exits when the channel closes.
func (r *CallRouter) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Bind routes signals from peer to handler. The previous handler for the
// same peer, if any, is replaced. The returned func unbinds.
func (r *CallRouter) Bind(peer domain.UserID, handler func(domain.CallSignal)) func() {
	r.mu.Lock()
	r.handlers[peer] = handler
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.handlers, peer)
		r.mu.Unlock()
	}
}

// Send publishes a call signal to the peer's channel, stamped with this
// user as sender.
func (r *CallRouter) Send(peer domain.UserID, sigType string, data json.RawMessage) error {
	r.mu.Lock()
	running := r.cancel != nil
	r.mu.Unlock()
	if !running {
		return ErrRouterStopped
	}
	sig := domain.CallSignal{
		Type:      sigType,
		SenderID:  r.self,
		Data:      data,
		Timestamp: r.clock.Now(),
	}
	return r.bus.Publish(CallChannel(peer), string(r.self), sig)
}

func (r *CallRouter) loop(ch <-chan core.Envelope) {
	for env := range ch {
		sig, err := decodeCallSignal(env.Payload)
		if err != nil {
			r.log.Warn().Err(err).Str("from", env.From).Msg("bad call signal")
			continue
		}
		r.mu.Lock()
		handler := r.handlers[sig.SenderID]
		r.mu.Unlock()
		if handler == nil {
			r.log.Debug().Str("sender", string(sig.SenderID)).Str("type", sig.Type).Msg("no handler bound, signal dropped")
			continue
		}
		handler(sig)
	}
}

// decodeCallSignal accepts in-process payloads (already a CallSignal) and
// payloads arriving as raw JSON from the hub's WebSocket bridge.
func decodeCallSignal(payload any) (domain.CallSignal, error) {
	switch p := payload.(type) {
	case domain.CallSignal:
		return p, nil
	case *domain.CallSignal:
		return *p, nil
	case json.RawMessage:
		var sig domain.CallSignal
		err := json.Unmarshal(p, &sig)
		return sig, err
	case []byte:
		var sig domain.CallSignal
		err := json.Unmarshal(p, &sig)
		return sig, err
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return domain.CallSignal{}, err
		}
		var sig domain.CallSignal
		err = json.Unmarshal(b, &sig)
		return sig, err
	}
}
