// Package gateway implements the signaling client for the SFU gateway:
// one WebSocket connection multiplexing request/response transactions,
// unsolicited plugin events and keepalives.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tkoca/huddle/internal/core"
)

// State is the top-level connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSessionCreated
	StateHandleAttached
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSessionCreated:
		return "session_created"
	case StateHandleAttached:
		return "handle_attached"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// RoomState is the per-room sub-state of the local participant.
type RoomState int

const (
	RoomNotJoined RoomState = iota
	RoomJoining
	RoomJoined
	RoomPublishing
	RoomLeft
)

func (s RoomState) String() string {
	switch s {
	case RoomJoining:
		return "joining"
	case RoomJoined:
		return "joined"
	case RoomPublishing:
		return "publishing"
	case RoomLeft:
		return "left"
	default:
		return "not_joined"
	}
}

// Config holds the session knobs; see internal/config for the file-backed
// defaults.
type Config struct {
	URL               string
	AdminSecret       string
	ConnectTimeout    time.Duration
	RequestTimeout    time.Duration
	EventTimeout      time.Duration
	KeepaliveInterval time.Duration
}

// asyncQueueSize bounds the event hand-off queue between the read loop and
// the delivery goroutine. Overflow drops frames rather than blocking reads.
const asyncQueueSize = 64

type pendingTx struct {
	ch        chan *Message
	createdAt time.Time
}

type eventWaiter struct {
	match func(*Message) bool
	ch    chan *Message
}

// Session is the single source of truth for one gateway connection. All
// requests pass through it; the read loop owns inbound dispatch. Safe for
// concurrent use.
type Session struct {
	cfg    Config
	dialer core.Dialer
	clock  core.Clock
	ids    core.TxIDGen
	log    zerolog.Logger

	mu           sync.Mutex
	state        State
	roomState    RoomState
	tr           core.Transport
	done         chan struct{}
	async        chan *Message
	sessionID    int64
	pubHandle    int64
	room         int64
	localFeedID  int64
	pending      map[string]*pendingTx
	waiters      []*eventWaiter
	observers    map[int]func(*Message)
	nextObserver int
	jsepSink     func(sender int64, jsep JSEP)
}

// NewSession builds a disconnected session. Dial happens in Connect.
func NewSession(cfg Config, dialer core.Dialer, clock core.Clock, ids core.TxIDGen) *Session {
	return &Session{
		cfg:       cfg,
		dialer:    dialer,
		clock:     clock,
		ids:       ids,
		log:       log.With().Str("module", "gateway").Logger(),
		pending:   make(map[string]*pendingTx),
		observers: make(map[int]func(*Message)),
	}
}

type uuidTxIDs struct{}

func (uuidTxIDs) NextID() string { return uuid.NewString() }

// UUIDTxIDs is the default transaction id generator.
func UUIDTxIDs() core.TxIDGen { return uuidTxIDs{} }

// State returns the top-level connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RoomState returns the per-room sub-state.
func (s *Session) RoomState() RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomState
}

// SessionID returns the server-assigned session identifier.
func (s *Session) SessionID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// PublisherHandle returns the plugin handle used for the publisher role.
func (s *Session) PublisherHandle() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pubHandle
}

// LocalFeedID returns the gateway-assigned id of the local publisher, zero
// before a successful join.
func (s *Session) LocalFeedID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localFeedID
}

// SetJSEPHandler registers the sink for asynchronous SDP payloads (the
// feed manager). Must be set before Connect.
func (s *Session) SetJSEPHandler(fn func(sender int64, jsep JSEP)) {
	s.mu.Lock()
	s.jsepSink = fn
	s.mu.Unlock()
}

// Connect opens the socket, starts the read and keepalive loops and performs
// the create-session and plugin-attach handshakes.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return &ConnectionError{Op: "connect", Err: errors.New("session already connected")}
	}
	s.state = StateConnecting
	s.roomState = RoomNotJoined
	done := make(chan struct{})
	async := make(chan *Message, asyncQueueSize)
	s.done = done
	s.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	tr, err := s.dialer.Dial(dialCtx, s.cfg.URL)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.done = nil
		s.mu.Unlock()
		close(done)
		return &ConnectionError{Op: "dial " + s.cfg.URL, Err: err}
	}

	s.mu.Lock()
	s.tr = tr
	s.async = async
	s.mu.Unlock()
	go s.readLoop(tr)
	go s.asyncLoop(done, async)

	created, err := s.SendRequest(ctx, &Request{Janus: verbCreate})
	if err != nil {
		s.teardown(tr)
		return err
	}
	if created.Janus != replySuccess || created.Data == nil {
		s.teardown(tr)
		return &ProtocolError{Reason: "create reply missing data.id"}
	}

	s.mu.Lock()
	s.sessionID = created.Data.ID
	s.state = StateSessionCreated
	sid := s.sessionID
	s.mu.Unlock()
	s.log.Info().Int64("session_id", sid).Msg("gateway session created")

	attached, err := s.SendRequest(ctx, &Request{Janus: verbAttach, SessionID: sid, Plugin: videoroomPlugin})
	if err != nil {
		s.teardown(tr)
		return err
	}
	if attached.Janus != replySuccess || attached.Data == nil {
		s.teardown(tr)
		return &ProtocolError{Reason: "attach reply missing data.id"}
	}

	s.mu.Lock()
	s.pubHandle = attached.Data.ID
	handle := s.pubHandle
	s.state = StateReady
	s.mu.Unlock()
	s.log.Info().Int64("handle_id", handle).Msg("publisher handle attached")

	go s.keepaliveLoop(done)
	return nil
}

// Close stops the keepalive loop, closes the socket and fails all
// outstanding transactions and waiters with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	tr := s.tr
	s.mu.Unlock()
	if tr != nil {
		s.teardown(tr)
	}
}

// teardown tears the session down if tr is still the live transport; stale
// read loops of an already-replaced connection are ignored.
func (s *Session) teardown(tr core.Transport) {
	s.mu.Lock()
	if s.tr != tr || s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.roomState = RoomNotJoined
	s.tr = nil
	s.async = nil
	s.sessionID = 0
	s.pubHandle = 0
	s.localFeedID = 0
	done := s.done
	s.done = nil
	s.pending = make(map[string]*pendingTx)
	s.waiters = nil
	s.mu.Unlock()

	_ = tr.Close()
	if done != nil {
		close(done)
	}
	s.log.Info().Msg("gateway session closed")
}

// SendRequest assigns a fresh transaction id, writes the frame and suspends
// the caller until the correlated reply arrives or the deadline passes.
// Multiple calls may be outstanding concurrently.
func (s *Session) SendRequest(ctx context.Context, req *Request) (*Message, error) {
	tx := s.ids.NextID()
	req.Transaction = tx

	s.mu.Lock()
	if s.tr == nil {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	tr := s.tr
	done := s.done
	p := &pendingTx{ch: make(chan *Message, 1), createdAt: s.clock.Now()}
	s.pending[tx] = p
	s.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		s.removePending(tx)
		return nil, &ProtocolError{Reason: "marshal request: " + err.Error()}
	}
	if err := tr.WriteMessage(data); err != nil {
		s.removePending(tx)
		s.teardown(tr)
		return nil, &ConnectionError{Op: "write", Err: err}
	}

	ctx, cancel := s.withDefaultTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	select {
	case m := <-p.ch:
		return m, nil
	case <-ctx.Done():
		s.removePending(tx)
		// The read loop may have resolved the transaction in the meantime.
		select {
		case m := <-p.ch:
			return m, nil
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Op: req.Janus + " reply"}
		}
		return nil, ctx.Err()
	case <-done:
		return nil, ErrClosed
	}
}

// addWaiter registers a one-shot waiter. Registering before sending the
// request that provokes the event closes the window in which the event
// could arrive unclaimed and be discarded.
func (s *Session) addWaiter(match func(*Message) bool) (*eventWaiter, chan struct{}, error) {
	s.mu.Lock()
	if s.tr == nil {
		s.mu.Unlock()
		return nil, nil, ErrClosed
	}
	done := s.done
	w := &eventWaiter{match: match, ch: make(chan *Message, 1)}
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()
	return w, done, nil
}

// awaitEvent suspends until the waiter's message arrives or the deadline
// passes.
func (s *Session) awaitEvent(ctx context.Context, w *eventWaiter, done chan struct{}) (*Message, error) {
	ctx, cancel := s.withDefaultTimeout(ctx, s.cfg.EventTimeout)
	defer cancel()
	select {
	case m := <-w.ch:
		return m, nil
	case <-ctx.Done():
		s.removeWaiter(w)
		select {
		case m := <-w.ch:
			return m, nil
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Op: "event"}
		}
		return nil, ctx.Err()
	case <-done:
		return nil, ErrClosed
	}
}

// WaitForEvent suspends until an unsolicited message satisfies match.
// Waiters are offered messages in registration order; the first predicate
// to accept a message consumes it. The predicate runs on the read loop and
// must not call back into the session.
func (s *Session) WaitForEvent(ctx context.Context, match func(*Message) bool) (*Message, error) {
	w, done, err := s.addWaiter(match)
	if err != nil {
		return nil, err
	}
	return s.awaitEvent(ctx, w, done)
}

// OnEvent registers a persistent observer for unsolicited messages that no
// one-shot waiter claimed. Handlers run on the session's event delivery
// goroutine, never on the read loop, so they are free to call back into
// the session; a slow handler delays later events, not request replies.
// The returned func unsubscribes it.
func (s *Session) OnEvent(handler func(*Message)) func() {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = handler
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Trickle sends one ICE candidate, fire-and-forget: no reply is awaited.
func (s *Session) Trickle(handleID int64, cand Candidate) error {
	s.mu.Lock()
	tr := s.tr
	sid := s.sessionID
	s.mu.Unlock()
	if tr == nil {
		return ErrClosed
	}
	req := &Request{
		Janus:       verbTrickle,
		Transaction: s.ids.NextID(),
		SessionID:   sid,
		HandleID:    handleID,
		Candidate:   &cand,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return &ProtocolError{Reason: "marshal trickle: " + err.Error()}
	}
	if err := tr.WriteMessage(data); err != nil {
		s.teardown(tr)
		return &ConnectionError{Op: "write trickle", Err: err}
	}
	return nil
}

// Keepalive sends a single keepalive transaction.
func (s *Session) Keepalive(ctx context.Context) error {
	s.mu.Lock()
	sid := s.sessionID
	s.mu.Unlock()
	if sid == 0 {
		return ErrClosed
	}
	m, err := s.SendRequest(ctx, &Request{Janus: verbKeepalive, SessionID: sid})
	if err != nil {
		return err
	}
	return errFromReply(m)
}

func (s *Session) keepaliveLoop(done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-s.clock.After(s.cfg.KeepaliveInterval):
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
			err := s.Keepalive(ctx)
			cancel()
			if err != nil {
				// A missed keepalive is logged, never fatal; only a closed
				// socket tears the session down.
				s.log.Warn().Err(err).Msg("keepalive failed")
			}
		}
	}
}

func (s *Session) removePending(tx string) {
	s.mu.Lock()
	delete(s.pending, tx)
	s.mu.Unlock()
}

func (s *Session) removeWaiter(w *eventWaiter) {
	s.mu.Lock()
	for i, cur := range s.waiters {
		if cur == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

// withDefaultTimeout applies def when the caller's context carries no
// deadline of its own.
func (s *Session) withDefaultTimeout(ctx context.Context, def time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, def)
}
