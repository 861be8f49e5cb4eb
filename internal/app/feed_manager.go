package app

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tkoca/huddle/internal/core"
	"github.com/tkoca/huddle/internal/domain"
	"github.com/tkoca/huddle/internal/gateway"
)

// SignalingSession is the slice of the gateway session the feed manager
// needs.
type SignalingSession interface {
	AttachHandle(ctx context.Context) (int64, error)
	DetachHandle(ctx context.Context, handleID int64) error
	JoinAsSubscriber(ctx context.Context, handleID int64, roomID domain.RoomID, feedID int64) error
	Start(ctx context.Context, handleID int64, roomID domain.RoomID, sdpAnswer string) error
	Publish(ctx context.Context, sdpOffer string) error
	Trickle(handleID int64, cand gateway.Candidate) error
	PublisherHandle() int64
	Room() domain.RoomID
}

type subscriberLeg struct {
	feed     domain.RemoteFeed
	handleID int64
	pc       core.MediaConnection
	// streams that already fired a notification, keyed by stream id.
	streams map[string]struct{}
}

// FeedManager tracks the one outbound publisher connection and N inbound
// subscriber connections keyed by remote feed id, keeping them consistent
// with server-announced publisher lifecycle.
type FeedManager struct {
	gw    SignalingSession
	media core.MediaFactory
	obs   core.VideoObserver
	log   zerolog.Logger

	mu    sync.Mutex
	pub   core.MediaConnection
	feeds map[int64]*subscriberLeg
}

func NewFeedManager(gw SignalingSession, media core.MediaFactory, obs core.VideoObserver) *FeedManager {
	return &FeedManager{
		gw:    gw,
		media: media,
		obs:   obs,
		log:   log.With().Str("module", "feeds").Logger(),
		feeds: make(map[int64]*subscriberLeg),
	}
}

// StartPublishing creates the publisher leg with the given local tracks,
// sends the offer and reports local-stream readiness. The SDP answer is
// applied later through HandleRemoteJSEP.
func (fm *FeedManager) StartPublishing(ctx context.Context, tracks []webrtc.TrackLocal) error {
	fm.mu.Lock()
	if fm.pub != nil {
		fm.mu.Unlock()
		return nil
	}
	fm.mu.Unlock()

	pc, err := fm.media.NewConnection()
	if err != nil {
		return err
	}
	for _, track := range tracks {
		if _, err := pc.AddLocalTrack(track); err != nil {
			pc.Close()
			return err
		}
	}

	pubHandle := fm.gw.PublisherHandle()
	pc.OnICECandidate(func(cand webrtc.ICECandidateInit) {
		fm.trickle(pubHandle, cand)
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		fm.obs.OnConnectionStateChanged(st.String())
	})

	offer, err := pc.CreateOffer()
	if err != nil {
		pc.Close()
		return err
	}
	if err := fm.gw.Publish(ctx, offer.SDP); err != nil {
		pc.Close()
		return err
	}

	fm.mu.Lock()
	fm.pub = pc
	fm.mu.Unlock()
	fm.obs.OnLocalStreamReady()
	return nil
}

// OnPublisherAnnounced subscribes to a newly announced remote feed.
// Idempotent: a feed that already has a subscriber leg is left alone.
func (fm *FeedManager) OnPublisherAnnounced(ctx context.Context, feed domain.RemoteFeed) error {
	fm.mu.Lock()
	if _, ok := fm.feeds[feed.ID]; ok {
		fm.mu.Unlock()
		return nil
	}
	// Reserve the slot before any blocking call so a concurrent announce
	// for the same feed is a no-op.
	leg := &subscriberLeg{feed: feed, streams: make(map[string]struct{})}
	fm.feeds[feed.ID] = leg
	fm.mu.Unlock()

	handleID, err := fm.gw.AttachHandle(ctx)
	if err != nil {
		fm.forget(feed.ID)
		return err
	}
	if err := fm.gw.JoinAsSubscriber(ctx, handleID, fm.gw.Room(), feed.ID); err != nil {
		fm.forget(feed.ID)
		return err
	}

	pc, err := fm.media.NewConnection()
	if err != nil {
		fm.forget(feed.ID)
		return err
	}
	pc.OnICECandidate(func(cand webrtc.ICECandidateInit) {
		fm.trickle(handleID, cand)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fm.onRemoteTrack(feed.ID, track.StreamID())
	})

	fm.mu.Lock()
	leg.handleID = handleID
	leg.pc = pc
	fm.mu.Unlock()

	fm.log.Info().Int64("feed_id", feed.ID).Int64("handle_id", handleID).Str("display", feed.DisplayName).Msg("subscribing to feed")
	return nil
}

// OnPublisherLeft tears the feed's leg down. Unknown feeds are a no-op.
func (fm *FeedManager) OnPublisherLeft(feedID int64) {
	fm.mu.Lock()
	leg, ok := fm.feeds[feedID]
	if ok {
		delete(fm.feeds, feedID)
	}
	fm.mu.Unlock()
	if !ok {
		return
	}

	if leg.pc != nil {
		leg.pc.Close()
	}
	if leg.handleID != 0 {
		if err := fm.gw.DetachHandle(context.Background(), leg.handleID); err != nil {
			fm.log.Warn().Err(err).Int64("feed_id", feedID).Msg("detach after leave")
		}
	}
	fm.obs.OnRemoteStreamRemoved(feedID)
	fm.log.Info().Int64("feed_id", feedID).Msg("feed left")
}

// onRemoteTrack surfaces a remote stream to the observer at most once per
// (feed, stream id), guarding against duplicate track events.
func (fm *FeedManager) onRemoteTrack(feedID int64, streamID string) {
	fm.mu.Lock()
	leg, ok := fm.feeds[feedID]
	if !ok {
		fm.mu.Unlock()
		return
	}
	if _, seen := leg.streams[streamID]; seen {
		fm.mu.Unlock()
		return
	}
	leg.streams[streamID] = struct{}{}
	fm.mu.Unlock()
	fm.obs.OnRemoteStreamAdded(feedID, streamID)
}

// HandleRemoteJSEP is the session's JSEP sink: answers complete the
// publisher leg, offers belong to the subscriber leg of the sending handle.
func (fm *FeedManager) HandleRemoteJSEP(sender int64, jsep gateway.JSEP) {
	switch jsep.Type {
	case "answer":
		fm.mu.Lock()
		pub := fm.pub
		fm.mu.Unlock()
		if pub == nil {
			fm.log.Warn().Msg("answer with no publisher connection")
			return
		}
		if err := pub.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  jsep.SDP,
		}); err != nil {
			fm.log.Error().Err(err).Msg("apply publisher answer")
		}
	case "offer":
		fm.completeSubscriber(sender, jsep.SDP)
	default:
		fm.log.Warn().Str("type", jsep.Type).Msg("unexpected jsep type")
	}
}

func (fm *FeedManager) completeSubscriber(handleID int64, sdp string) {
	fm.mu.Lock()
	var leg *subscriberLeg
	for _, cur := range fm.feeds {
		if cur.handleID == handleID {
			leg = cur
			break
		}
	}
	fm.mu.Unlock()
	if leg == nil || leg.pc == nil {
		fm.log.Warn().Int64("handle_id", handleID).Msg("offer for unknown subscriber handle")
		return
	}

	if err := leg.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	}); err != nil {
		fm.log.Error().Err(err).Int64("feed_id", leg.feed.ID).Msg("apply subscriber offer")
		return
	}
	answer, err := leg.pc.CreateAnswer()
	if err != nil {
		fm.log.Error().Err(err).Int64("feed_id", leg.feed.ID).Msg("create subscriber answer")
		return
	}
	if err := fm.gw.Start(context.Background(), handleID, fm.gw.Room(), answer.SDP); err != nil {
		fm.log.Error().Err(err).Int64("feed_id", leg.feed.ID).Msg("start subscriber")
	}
}

// ReplaceTrack swaps an outbound publisher track without renegotiating.
func (fm *FeedManager) ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error {
	fm.mu.Lock()
	pub := fm.pub
	fm.mu.Unlock()
	if pub == nil {
		return ErrNotPublishing
	}
	return pub.ReplaceTrack(kind, track)
}

// SetTrackEnabled pauses or resumes an outbound publisher track.
func (fm *FeedManager) SetTrackEnabled(kind webrtc.RTPCodecType, enabled bool) error {
	fm.mu.Lock()
	pub := fm.pub
	fm.mu.Unlock()
	if pub == nil {
		return ErrNotPublishing
	}
	return pub.SetTrackEnabled(kind, enabled)
}

// SubscriberCount returns the number of live subscriber legs.
func (fm *FeedManager) SubscriberCount() int {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return len(fm.feeds)
}

// Close tears down the publisher and every subscriber leg.
func (fm *FeedManager) Close() {
	fm.mu.Lock()
	pub := fm.pub
	fm.pub = nil
	feeds := fm.feeds
	fm.feeds = make(map[int64]*subscriberLeg)
	fm.mu.Unlock()

	if pub != nil {
		pub.Close()
	}
	for _, leg := range feeds {
		if leg.pc != nil {
			leg.pc.Close()
		}
	}
}

func (fm *FeedManager) forget(feedID int64) {
	fm.mu.Lock()
	delete(fm.feeds, feedID)
	fm.mu.Unlock()
}

func (fm *FeedManager) trickle(handleID int64, cand webrtc.ICECandidateInit) {
	c := gateway.Candidate{Candidate: cand.Candidate}
	if cand.SDPMid != nil {
		c.SDPMid = *cand.SDPMid
	}
	if cand.SDPMLineIndex != nil {
		c.SDPMLineIndex = *cand.SDPMLineIndex
	}
	if err := fm.gw.Trickle(handleID, c); err != nil {
		fm.log.Warn().Err(err).Int64("handle_id", handleID).Msg("trickle failed")
	}
}
