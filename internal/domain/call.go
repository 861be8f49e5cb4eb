package domain

import (
	"encoding/json"
	"time"
)

// Call signal types carried over the hub for the one-to-one call path.
const (
	CallSignalOffer     = "offer"
	CallSignalAnswer    = "answer"
	CallSignalCandidate = "ice-candidate"
	CallSignalRequest   = "call-request"
	CallSignalAccepted  = "call-accepted"
	CallSignalRejected  = "call-rejected"
	CallSignalHangup    = "call-hangup"
)

// CallSignal is the point-to-point call-setup envelope. Data is opaque to
// the router; it is forwarded verbatim to the active handler for the peer.
type CallSignal struct {
	Type      string          `json:"type"`
	SenderID  UserID          `json:"senderId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
