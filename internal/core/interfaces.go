package core

import (
	"context"
	"time"
)

// Frame is one raw signaling frame (JSON text on the wire).
type Frame []byte

// Transport abstracts a framed connection to the gateway.
// Owned by the session; the session must Close() it.
type Transport interface {
	WriteMessage(Frame) error
	// ReadMessage blocks until the next inbound frame or a transport error.
	ReadMessage() (Frame, error)
	Close() error
}

// Dialer opens a Transport to the given URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// Clock is injected so deadlines and keepalive cadence are testable.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// TxIDGen produces transaction ids, unique per outstanding request.
type TxIDGen interface {
	NextID() string
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return realClock{} }
