// Package hub is the generic real-time message hub: named channels with
// publish/subscribe fan-out, plus a WebSocket controller bridging browser
// clients onto channels.
package hub

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tkoca/huddle/internal/core"
)

const subscriberBuffer = 32

// Bus is the in-process SignalBus implementation. Slow subscribers drop
// messages instead of blocking publishers.
type Bus struct {
	log zerolog.Logger

	mu   sync.RWMutex
	subs map[string]map[chan core.Envelope]struct{}
}

func NewBus() *Bus {
	return &Bus{
		log:  log.With().Str("module", "hub").Logger(),
		subs: make(map[string]map[chan core.Envelope]struct{}),
	}
}

func (b *Bus) Publish(channel string, from string, payload any) error {
	env := core.Envelope{Channel: channel, From: from, Payload: payload}
	// Sends stay under the read lock so cancel (which closes the channel
	// under the write lock) cannot race a send. Sends never block.
	b.mu.RLock()
	for ch := range b.subs[channel] {
		select {
		case ch <- env:
		default:
			b.log.Warn().Str("channel", channel).Msg("subscriber backpressure, envelope dropped")
		}
	}
	b.mu.RUnlock()
	return nil
}

func (b *Bus) Subscribe(channel string) (<-chan core.Envelope, func()) {
	ch := make(chan core.Envelope, subscriberBuffer)
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan core.Envelope]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[channel], ch)
			if len(b.subs[channel]) == 0 {
				delete(b.subs, channel)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
