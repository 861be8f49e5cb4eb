package gateway

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tkoca/huddle/internal/core"
)

const (
	testSessionID = int64(111)
	testHandleID  = int64(222)
)

// fakeTransport is a scripted in-memory transport. Outbound frames are
// recorded and optionally answered by the reply hook; inbound frames are
// injected with deliver.
type fakeTransport struct {
	mu   sync.Mutex
	sent []map[string]any
	// reply inspects one outbound frame and returns the frames to feed
	// back to the read loop. Nil means no reply.
	reply func(req map[string]any) []map[string]any

	in     chan core.Frame
	closed chan struct{}
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan core.Frame, 16),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) WriteMessage(data core.Frame) error {
	select {
	case <-t.closed:
		return io.ErrClosedPipe
	default:
	}
	var req map[string]any
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	t.mu.Lock()
	t.sent = append(t.sent, req)
	reply := t.reply
	t.mu.Unlock()
	if reply != nil {
		for _, m := range reply(req) {
			t.deliver(m)
		}
	}
	return nil
}

func (t *fakeTransport) ReadMessage() (core.Frame, error) {
	select {
	case f := <-t.in:
		return f, nil
	case <-t.closed:
		return nil, io.EOF
	}
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) deliver(m map[string]any) {
	data, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	t.in <- data
}

func (t *fakeTransport) sentFrames() []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]map[string]any, len(t.sent))
	copy(out, t.sent)
	return out
}

func (t *fakeTransport) lastSent() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sent) == 0 {
		return nil
	}
	return t.sent[len(t.sent)-1]
}

type fakeDialer struct {
	tr *fakeTransport
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (core.Transport, error) {
	return d.tr, nil
}

// fakeClock serves a shared tick channel; tick fires pending After waits.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	ticks chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		ticks: make(chan time.Time, 16),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(time.Duration) <-chan time.Time {
	return c.ticks
}

func (c *fakeClock) tick(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	c.ticks <- now
}

// handshakeReplies answers create/attach/keepalive the way the gateway
// does; anything else stays unanswered.
func handshakeReplies(req map[string]any) []map[string]any {
	tx, _ := req["transaction"].(string)
	switch req["janus"] {
	case verbCreate:
		return []map[string]any{{
			"janus": "success", "transaction": tx,
			"data": map[string]any{"id": testSessionID},
		}}
	case verbAttach:
		return []map[string]any{{
			"janus": "success", "transaction": tx,
			"data": map[string]any{"id": testHandleID},
		}}
	case verbKeepalive:
		return []map[string]any{{"janus": "ack", "transaction": tx}}
	}
	return nil
}

// pluginEvent builds an inbound plugindata frame.
func pluginEvent(tx string, sender int64, data map[string]any) map[string]any {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	m := map[string]any{
		"janus":  "event",
		"sender": sender,
		"plugindata": map[string]any{
			"plugin": videoroomPlugin,
			"data":   json.RawMessage(raw),
		},
	}
	if tx != "" {
		m["transaction"] = tx
	}
	return m
}

func ackFor(req map[string]any) []map[string]any {
	tx, _ := req["transaction"].(string)
	return []map[string]any{{"janus": "ack", "transaction": tx}}
}

func testConfig() Config {
	return Config{
		URL:               "ws://gateway.test/janus",
		ConnectTimeout:    time.Second,
		RequestTimeout:    time.Second,
		EventTimeout:      time.Second,
		KeepaliveInterval: 25 * time.Second,
	}
}

// newTestSession connects a session against a scripted transport with the
// handshake already answered.
func newTestSession(t *testing.T, extra func(req map[string]any) []map[string]any) (*Session, *fakeTransport, *fakeClock) {
	t.Helper()

	tr := newFakeTransport()
	tr.reply = func(req map[string]any) []map[string]any {
		if replies := handshakeReplies(req); replies != nil {
			return replies
		}
		if extra != nil {
			return extra(req)
		}
		return nil
	}

	clock := newFakeClock()
	s := NewSession(testConfig(), &fakeDialer{tr: tr}, clock, UUIDTxIDs())
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(s.Close)
	return s, tr, clock
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
