package gateway

import (
	"encoding/json"

	"github.com/tkoca/huddle/internal/core"
)

func (s *Session) readLoop(tr core.Transport) {
	for {
		data, err := tr.ReadMessage()
		if err != nil {
			s.mu.Lock()
			live := s.tr == tr
			s.mu.Unlock()
			if live {
				s.log.Warn().Err(err).Msg("read loop stopped")
			}
			s.teardown(tr)
			return
		}
		s.dispatch(data)
	}
}

// dispatch runs for every inbound frame. Order: correlated reply first,
// then asynchronous SDP, then one-shot waiters, then persistent observers.
// Unmatched frames are logged and dropped; that is not an error.
//
// Dispatch itself never blocks and never runs user callbacks: replies and
// waiter matches are buffered channel sends, JSEP and observer frames are
// handed to the event delivery goroutine. Callbacks that issue requests of
// their own therefore cannot starve the read loop of the replies those
// requests wait for.
func (s *Session) dispatch(data core.Frame) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		s.log.Debug().Err(err).Msg("unparseable frame dropped")
		return
	}

	if m.Transaction != "" {
		s.mu.Lock()
		p, ok := s.pending[m.Transaction]
		if ok {
			delete(s.pending, m.Transaction)
		}
		s.mu.Unlock()
		if ok {
			// Resolved exactly once; the channel is buffered so the read
			// loop never blocks on a slow caller.
			p.ch <- &m
			return
		}
		// A late reply for a timed-out transaction falls through and is
		// almost always discarded below.
	}

	if m.JSEP != nil {
		s.enqueueAsync(&m)
		return
	}

	s.mu.Lock()
	for i, w := range s.waiters {
		if w.match(&m) {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			s.mu.Unlock()
			w.ch <- &m
			return
		}
	}
	hasObservers := len(s.observers) > 0
	s.mu.Unlock()

	if hasObservers {
		s.enqueueAsync(&m)
		return
	}
	s.log.Debug().Str("janus", m.Janus).Int64("sender", m.Sender).Msg("unmatched frame discarded")
}

// enqueueAsync hands a frame to the delivery goroutine. Drops on overflow;
// the read loop must never block behind a slow handler.
func (s *Session) enqueueAsync(m *Message) {
	s.mu.Lock()
	ch := s.async
	s.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- m:
	default:
		s.log.Warn().Str("janus", m.Janus).Int64("sender", m.Sender).Msg("event queue full, frame dropped")
	}
}

// asyncLoop delivers JSEP payloads and observer events off the read loop,
// one at a time, until the session is torn down.
func (s *Session) asyncLoop(done chan struct{}, ch chan *Message) {
	for {
		select {
		case <-done:
			return
		case m := <-ch:
			s.deliverAsync(m)
		}
	}
}

func (s *Session) deliverAsync(m *Message) {
	if m.JSEP != nil {
		s.mu.Lock()
		sink := s.jsepSink
		s.mu.Unlock()
		if sink != nil {
			sink(m.Sender, *m.JSEP)
			return
		}
		s.log.Debug().Int64("sender", m.Sender).Str("type", m.JSEP.Type).Msg("jsep frame with no handler dropped")
		return
	}

	s.mu.Lock()
	observers := make([]func(*Message), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()
	for _, fn := range observers {
		fn(m)
	}
}
