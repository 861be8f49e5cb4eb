// Package rtc wraps pion peer connections for the publisher and subscriber
// legs towards the gateway.
package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tkoca/huddle/internal/core"
)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Factory builds Connections with a shared configuration.
type Factory struct {
	cfg webrtc.Configuration
}

func NewFactory(cfg webrtc.Configuration) *Factory {
	return &Factory{cfg: cfg}
}

func (f *Factory) NewConnection() (core.MediaConnection, error) {
	pc, err := webrtc.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{
		pc:     pc,
		log:    log.With().Str("module", "rtc").Logger(),
		queue:  newCandidateQueue(),
		parked: make(map[webrtc.RTPCodecType]parkedTrack),
	}
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if cand != nil && fn != nil {
			fn(cand.ToJSON())
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track received")
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(track, receiver)
		}
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		c.log.Info().Str("peer_connection_state", st.String()).Msg("peer state")
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(st)
		}
	})
	return c, nil
}

// Connection is one peer connection leg. Remote ICE candidates arriving
// before the remote description are queued and flushed once it is set.
type Connection struct {
	pc  *webrtc.PeerConnection
	log zerolog.Logger

	mu      sync.Mutex
	closed  bool
	queue   *candidateQueue
	onICE   func(webrtc.ICECandidateInit)
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onState func(webrtc.PeerConnectionState)
	// parked holds outbound tracks detached by SetTrackEnabled(false),
	// together with the sender they came off.
	parked map[webrtc.RTPCodecType]parkedTrack
}

type parkedTrack struct {
	sender *webrtc.RTPSender
	track  webrtc.TrackLocal
}

func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	if err := c.pc.Close(); err != nil {
		c.log.Error().Err(err).Msg("close error")
	}
}

func (c *Connection) CreateOffer() (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return &offer, nil
}

func (c *Connection) CreateAnswer() (*webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

func (c *Connection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	for _, cand := range c.queue.drain() {
		if err := c.pc.AddICECandidate(cand); err != nil {
			c.log.Error().Err(err).Msg("flush queued candidate")
		}
	}
	return nil
}

func (c *Connection) AddICECandidate(cand webrtc.ICECandidateInit) error {
	if c.queue.offer(c.pc.RemoteDescription() == nil, cand) {
		return nil
	}
	return c.pc.AddICECandidate(cand)
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *Connection) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *Connection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Connection) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return c.pc.AddTrack(track)
}

// ReplaceTrack swaps the outbound track of the given kind in place, without
// renegotiating the room join.
func (c *Connection) ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error {
	sender, err := c.senderFor(kind)
	if err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.parked, kind)
	c.mu.Unlock()
	return sender.ReplaceTrack(track)
}

// SetTrackEnabled detaches or restores the outbound track of the given
// kind. Disabling parks the current track so enabling can restore it.
func (c *Connection) SetTrackEnabled(kind webrtc.RTPCodecType, enabled bool) error {
	sender, err := c.senderFor(kind)
	if err != nil {
		return err
	}
	if enabled {
		c.mu.Lock()
		p, ok := c.parked[kind]
		if ok {
			delete(c.parked, kind)
		}
		c.mu.Unlock()
		if !ok {
			return nil
		}
		return p.sender.ReplaceTrack(p.track)
	}
	track := sender.Track()
	if track == nil {
		return nil
	}
	c.mu.Lock()
	c.parked[kind] = parkedTrack{sender: sender, track: track}
	c.mu.Unlock()
	return sender.ReplaceTrack(nil)
}

func (c *Connection) senderFor(kind webrtc.RTPCodecType) (*webrtc.RTPSender, error) {
	c.mu.Lock()
	if p, ok := c.parked[kind]; ok {
		c.mu.Unlock()
		return p.sender, nil
	}
	c.mu.Unlock()
	for _, sender := range c.pc.GetSenders() {
		track := sender.Track()
		if track != nil && track.Kind() == kind {
			return sender, nil
		}
	}
	return nil, ErrNoSender
}
