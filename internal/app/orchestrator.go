// Package app holds the application services: the video orchestrator tying
// the gateway session to peer connections, the feed manager for remote
// publisher feeds, and the call router for one-to-one call signaling.
package app

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tkoca/huddle/internal/core"
	"github.com/tkoca/huddle/internal/domain"
	"github.com/tkoca/huddle/internal/gateway"
)

// Gateway is the full session surface the orchestrator drives. Implemented
// by *gateway.Session.
type Gateway interface {
	SignalingSession

	Connect(ctx context.Context) error
	Close()
	SetJSEPHandler(fn func(sender int64, jsep gateway.JSEP))
	OnEvent(handler func(*gateway.Message)) func()

	CreateRoom(ctx context.Context, roomID domain.RoomID, name string, capacity int) error
	DestroyRoom(ctx context.Context, roomID domain.RoomID) error
	JoinAsPublisher(ctx context.Context, roomID domain.RoomID, display string) ([]domain.RemoteFeed, error)
	Leave(ctx context.Context) error
	Kick(ctx context.Context, roomID domain.RoomID, feedID int64) error
	ListRooms(ctx context.Context) ([]domain.RoomInfo, error)
	RoomExists(ctx context.Context, roomID domain.RoomID) (bool, error)
	ListParticipants(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error)
	ConfigureMedia(ctx context.Context, audio, video bool) error
	LocalFeedID() int64
}

// VideoOrchestrator is the high-level entry point for group video: it owns
// the gateway session, translates gateway events into feed lifecycle, and
// exposes room and media operations.
type VideoOrchestrator struct {
	gw    Gateway
	feeds *FeedManager
	obs   core.VideoObserver
	log   zerolog.Logger

	unsubscribe func()
}

func NewVideoOrchestrator(gw Gateway, media core.MediaFactory, obs core.VideoObserver) *VideoOrchestrator {
	o := &VideoOrchestrator{
		gw:    gw,
		feeds: NewFeedManager(gw, media, obs),
		obs:   obs,
		log:   log.With().Str("module", "video").Logger(),
	}
	gw.SetJSEPHandler(o.feeds.HandleRemoteJSEP)
	return o
}

// Connect establishes the gateway session and starts listening for
// publisher lifecycle events.
func (o *VideoOrchestrator) Connect(ctx context.Context) error {
	if err := o.gw.Connect(ctx); err != nil {
		return err
	}
	o.unsubscribe = o.gw.OnEvent(o.onGatewayEvent)
	return nil
}

// Close tears down every peer connection and the gateway session.
func (o *VideoOrchestrator) Close() {
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
	o.feeds.Close()
	o.gw.Close()
}

// JoinRoom joins as a publisher and subscribes to every feed already
// publishing in the room.
func (o *VideoOrchestrator) JoinRoom(ctx context.Context, roomID domain.RoomID, display string) error {
	existing, err := o.gw.JoinAsPublisher(ctx, roomID, display)
	if err != nil {
		return err
	}
	for _, feed := range existing {
		if err := o.feeds.OnPublisherAnnounced(ctx, feed); err != nil {
			o.log.Error().Err(err).Int64("feed_id", feed.ID).Msg("subscribe to existing feed")
		}
	}
	return nil
}

// StartPublishing begins sending the given local tracks into the room.
func (o *VideoOrchestrator) StartPublishing(ctx context.Context, tracks []webrtc.TrackLocal) error {
	return o.feeds.StartPublishing(ctx, tracks)
}

// LeaveRoom unpublishes, leaves the room and drops all peer connections.
func (o *VideoOrchestrator) LeaveRoom(ctx context.Context) error {
	err := o.gw.Leave(ctx)
	o.feeds.Close()
	return err
}

// SwitchCamera swaps the outbound video track in place.
func (o *VideoOrchestrator) SwitchCamera(track webrtc.TrackLocal) error {
	return o.feeds.ReplaceTrack(webrtc.RTPCodecTypeVideo, track)
}

// SwitchMicrophone swaps the outbound audio track in place.
func (o *VideoOrchestrator) SwitchMicrophone(track webrtc.TrackLocal) error {
	return o.feeds.ReplaceTrack(webrtc.RTPCodecTypeAudio, track)
}

// SetScreenShare replaces the outbound video track with the screen capture
// track, or back with the camera track when sharing stops.
func (o *VideoOrchestrator) SetScreenShare(track webrtc.TrackLocal) error {
	return o.feeds.ReplaceTrack(webrtc.RTPCodecTypeVideo, track)
}

// ToggleMedia pauses or resumes the outbound tracks locally and tells the
// gateway to update the published media state.
func (o *VideoOrchestrator) ToggleMedia(ctx context.Context, audio, video bool) error {
	if err := o.feeds.SetTrackEnabled(webrtc.RTPCodecTypeAudio, audio); err != nil {
		return err
	}
	if err := o.feeds.SetTrackEnabled(webrtc.RTPCodecTypeVideo, video); err != nil {
		return err
	}
	return o.gw.ConfigureMedia(ctx, audio, video)
}

// Room management passthroughs.

func (o *VideoOrchestrator) CreateRoom(ctx context.Context, roomID domain.RoomID, name string, capacity int) error {
	return o.gw.CreateRoom(ctx, roomID, name, capacity)
}

func (o *VideoOrchestrator) DestroyRoom(ctx context.Context, roomID domain.RoomID) error {
	return o.gw.DestroyRoom(ctx, roomID)
}

func (o *VideoOrchestrator) Kick(ctx context.Context, roomID domain.RoomID, feedID int64) error {
	return o.gw.Kick(ctx, roomID, feedID)
}

func (o *VideoOrchestrator) ListRooms(ctx context.Context) ([]domain.RoomInfo, error) {
	return o.gw.ListRooms(ctx)
}

func (o *VideoOrchestrator) RoomExists(ctx context.Context, roomID domain.RoomID) (bool, error) {
	return o.gw.RoomExists(ctx, roomID)
}

func (o *VideoOrchestrator) ListParticipants(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	return o.gw.ListParticipants(ctx, roomID)
}

// LocalFeedID is the gateway-assigned id of the local publisher, zero
// before a join completes.
func (o *VideoOrchestrator) LocalFeedID() int64 {
	return o.gw.LocalFeedID()
}

// onGatewayEvent watches unsolicited room events for publisher arrivals
// and departures.
func (o *VideoOrchestrator) onGatewayEvent(m *gateway.Message) {
	if m.Janus != "event" {
		return
	}
	data, err := m.Videoroom()
	if err != nil {
		return
	}
	if data.Videoroom != "event" {
		return
	}

	for _, pub := range data.Publishers {
		feed := domain.RemoteFeed{
			ID:          pub.ID,
			DisplayName: pub.Display,
			AudioActive: pub.AudioActive,
			VideoActive: pub.VideoActive,
		}
		if err := o.feeds.OnPublisherAnnounced(context.Background(), feed); err != nil {
			o.log.Error().Err(err).Int64("feed_id", feed.ID).Msg("subscribe to announced feed")
		}
	}
	if id, ok := gateway.FeedRef(data.Leaving); ok {
		o.feeds.OnPublisherLeft(id)
	}
	if id, ok := gateway.FeedRef(data.Unpublished); ok {
		o.feeds.OnPublisherLeft(id)
	}
}
