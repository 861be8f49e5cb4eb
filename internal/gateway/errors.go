package gateway

import (
	"errors"
	"fmt"
)

// ErrClosed fails every operation attempted or pending during teardown.
var ErrClosed = errors.New("gateway: connection closed")

// ConnectionError is a socket open/write failure.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError is a malformed or unexpected-shape reply. It fails only the
// operation that saw it; the session stays up.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "gateway: protocol: " + e.Reason }

// TimeoutError reports that no reply or event arrived within the deadline.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return "gateway: timeout waiting for " + e.Op }

// RoomError carries an application-level failure reported by the gateway,
// such as room-not-found or unauthorized.
type RoomError struct {
	Room   int64
	Code   int
	Reason string
}

func (e *RoomError) Error() string {
	return fmt.Sprintf("gateway: room %d: %s (code %d)", e.Room, e.Reason, e.Code)
}
