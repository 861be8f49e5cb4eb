package core

import (
	"github.com/pion/webrtc/v4"
)

// MediaConnection is one WebRTC leg towards the gateway (publisher or
// subscriber). Implementations must queue remote ICE candidates that arrive
// before the remote description and flush them once it is set.
type MediaConnection interface {
	// Close stops the underlying peer connection. Idempotent.
	Close()
	// CreateOffer produces and installs the local offer (publisher leg).
	CreateOffer() (*webrtc.SessionDescription, error)
	// CreateAnswer produces and installs the local answer. The remote
	// description must already be set.
	CreateAnswer() (*webrtc.SessionDescription, error)
	// SetRemoteDescription applies the remote SDP and flushes queued candidates.
	SetRemoteDescription(webrtc.SessionDescription) error
	// AddICECandidate applies a remote candidate, queueing it when the
	// remote description is not set yet.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback for remote tracks (subscriber leg).
	OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// OnConnectionStateChange sets a callback for peer connection state moves.
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	// AddLocalTrack attaches an outbound track (publisher leg).
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	// ReplaceTrack swaps the outbound track of the given kind without
	// renegotiating. Used for camera/microphone/screen-share switches.
	ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error
	// SetTrackEnabled pauses or resumes the outbound track of the given kind.
	SetTrackEnabled(kind webrtc.RTPCodecType, enabled bool) error
}

// MediaFactory builds MediaConnections; injected so the feed manager is
// testable without pion.
type MediaFactory interface {
	NewConnection() (MediaConnection, error)
}

// VideoObserver receives UI-facing notifications from the video core.
// Callbacks fire from the session's event delivery goroutine; a blocking
// callback delays later events but never the signaling read loop.
type VideoObserver interface {
	OnLocalStreamReady()
	OnRemoteStreamAdded(feedID int64, streamID string)
	OnRemoteStreamRemoved(feedID int64)
	OnConnectionStateChanged(state string)
}
