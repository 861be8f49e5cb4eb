package gateway

import (
	"context"
	"time"

	"github.com/tkoca/huddle/internal/domain"
)

// errFromReply surfaces a top-level gateway error reply. Acks and success
// replies pass through as nil.
func errFromReply(m *Message) error {
	if m.Janus != replyError {
		return nil
	}
	reason := "gateway error"
	if m.Error != nil {
		reason = m.Error.Reason
	}
	return &ProtocolError{Reason: reason}
}

// pluginReply sends a plugin message on the given handle and decodes the
// synchronous videoroom reply. Async operations (join, publish, start,
// leave) get an ack instead and must not use this helper.
func (s *Session) pluginReply(ctx context.Context, handleID int64, body map[string]any) (*VideoroomData, error) {
	m, err := s.SendRequest(ctx, &Request{
		Janus:     verbMessage,
		SessionID: s.SessionID(),
		HandleID:  handleID,
		Body:      body,
	})
	if err != nil {
		return nil, err
	}
	if err := errFromReply(m); err != nil {
		return nil, err
	}
	return m.Videoroom()
}

// ackedRequest sends a request whose success answer is an ack (the real
// outcome, if any, arrives later as an event). A synchronous gateway error
// still fails the operation instead of being swallowed.
func (s *Session) ackedRequest(ctx context.Context, req *Request) error {
	m, err := s.SendRequest(ctx, req)
	if err != nil {
		return err
	}
	return errFromReply(m)
}

// CreateRoom creates a room on the gateway. Idempotent: an "already exists"
// answer for the same room id is success.
func (s *Session) CreateRoom(ctx context.Context, roomID domain.RoomID, name string, capacity int) error {
	body := map[string]any{
		"request":     "create",
		"room":        int64(roomID),
		"description": name,
		"publishers":  capacity,
	}
	if s.cfg.AdminSecret != "" {
		body["admin_key"] = s.cfg.AdminSecret
	}
	data, err := s.pluginReply(ctx, s.PublisherHandle(), body)
	if err != nil {
		return err
	}
	switch {
	case data.Videoroom == "created":
		return nil
	case data.ErrorCode == codeRoomExists:
		return nil
	case data.Videoroom == replyEvent && data.Room == int64(roomID):
		return nil
	default:
		return &RoomError{Room: int64(roomID), Code: data.ErrorCode, Reason: data.Error}
	}
}

// JoinAsPublisher joins the room on the publisher handle and waits for the
// scoped "joined" event. Returns the publishers already present, to be
// subscribed to by the feed manager.
func (s *Session) JoinAsPublisher(ctx context.Context, roomID domain.RoomID, display string) ([]domain.RemoteFeed, error) {
	handle := s.PublisherHandle()

	s.mu.Lock()
	s.roomState = RoomJoining
	s.room = int64(roomID)
	s.mu.Unlock()

	// Register the waiter before sending the join: the joined event may
	// beat the ack onto the wire and must not slip past unclaimed.
	w, done, err := s.addWaiter(func(m *Message) bool {
		if m.Janus != replyEvent || m.Sender != handle {
			return false
		}
		d, derr := m.Videoroom()
		return derr == nil && d.Videoroom == "joined"
	})
	if err != nil {
		s.setRoomState(RoomNotJoined)
		return nil, err
	}

	// The gateway never gets a client-chosen feed id; it assigns one.
	if err := s.ackedRequest(ctx, &Request{
		Janus:     verbMessage,
		SessionID: s.SessionID(),
		HandleID:  handle,
		Body: map[string]any{
			"request": "join",
			"ptype":   "publisher",
			"room":    int64(roomID),
			"display": display,
		},
	}); err != nil {
		s.removeWaiter(w)
		s.setRoomState(RoomNotJoined)
		return nil, err
	}

	evt, err := s.awaitEvent(ctx, w, done)
	if err != nil {
		s.setRoomState(RoomNotJoined)
		return nil, err
	}

	data, err := evt.Videoroom()
	if err != nil {
		s.setRoomState(RoomNotJoined)
		return nil, err
	}
	if data.ID == 0 {
		s.setRoomState(RoomNotJoined)
		return nil, &ProtocolError{Reason: "joined event missing id"}
	}

	s.mu.Lock()
	s.localFeedID = data.ID
	s.roomState = RoomJoined
	s.mu.Unlock()
	s.log.Info().Int64("room", int64(roomID)).Int64("feed_id", data.ID).Str("display", display).Msg("joined as publisher")

	feeds := make([]domain.RemoteFeed, 0, len(data.Publishers))
	for _, p := range data.Publishers {
		feeds = append(feeds, domain.RemoteFeed{
			ID:          p.ID,
			DisplayName: p.Display,
			AudioActive: true,
			VideoActive: true,
		})
	}
	return feeds, nil
}

// Publish sends the local SDP offer on the publisher handle. The answer
// arrives asynchronously through the JSEP branch of the read loop.
func (s *Session) Publish(ctx context.Context, sdpOffer string) error {
	if err := s.ackedRequest(ctx, &Request{
		Janus:     verbMessage,
		SessionID: s.SessionID(),
		HandleID:  s.PublisherHandle(),
		Body:      map[string]any{"request": "publish", "audio": true, "video": true},
		JSEP:      &JSEP{Type: "offer", SDP: sdpOffer},
	}); err != nil {
		return err
	}
	s.setRoomState(RoomPublishing)
	return nil
}

// ConfigureMedia toggles the published audio/video without renegotiating.
func (s *Session) ConfigureMedia(ctx context.Context, audio, video bool) error {
	return s.ackedRequest(ctx, &Request{
		Janus:     verbMessage,
		SessionID: s.SessionID(),
		HandleID:  s.PublisherHandle(),
		Body:      map[string]any{"request": "configure", "audio": audio, "video": video},
	})
}

// AttachHandle attaches a fresh videoroom handle, one per subscribed feed.
func (s *Session) AttachHandle(ctx context.Context) (int64, error) {
	m, err := s.SendRequest(ctx, &Request{
		Janus:     verbAttach,
		SessionID: s.SessionID(),
		Plugin:    videoroomPlugin,
	})
	if err != nil {
		return 0, err
	}
	if m.Janus != replySuccess || m.Data == nil {
		return 0, &ProtocolError{Reason: "attach reply missing data.id"}
	}
	return m.Data.ID, nil
}

// DetachHandle releases a subscriber handle after its feed went away.
func (s *Session) DetachHandle(ctx context.Context, handleID int64) error {
	return s.ackedRequest(ctx, &Request{
		Janus:     verbDetach,
		SessionID: s.SessionID(),
		HandleID:  handleID,
	})
}

// JoinAsSubscriber asks the gateway for the given feed on a dedicated
// handle. The SDP offer for this leg arrives asynchronously.
func (s *Session) JoinAsSubscriber(ctx context.Context, handleID int64, roomID domain.RoomID, feedID int64) error {
	return s.ackedRequest(ctx, &Request{
		Janus:     verbMessage,
		SessionID: s.SessionID(),
		HandleID:  handleID,
		Body: map[string]any{
			"request":  "join",
			"ptype":    "subscriber",
			"room":     int64(roomID),
			"feed":     feedID,
			"close_pc": true,
		},
	})
}

// Start completes a subscriber leg with the local SDP answer.
func (s *Session) Start(ctx context.Context, handleID int64, roomID domain.RoomID, sdpAnswer string) error {
	return s.ackedRequest(ctx, &Request{
		Janus:     verbMessage,
		SessionID: s.SessionID(),
		HandleID:  handleID,
		Body:      map[string]any{"request": "start", "room": int64(roomID)},
		JSEP:      &JSEP{Type: "answer", SDP: sdpAnswer},
	})
}

// Leave leaves the current room on the publisher handle.
func (s *Session) Leave(ctx context.Context) error {
	if err := s.ackedRequest(ctx, &Request{
		Janus:     verbMessage,
		SessionID: s.SessionID(),
		HandleID:  s.PublisherHandle(),
		Body:      map[string]any{"request": "leave"},
	}); err != nil {
		return err
	}
	s.mu.Lock()
	s.roomState = RoomLeft
	s.localFeedID = 0
	s.mu.Unlock()
	return nil
}

// DestroyRoom destroys a room; privileged, requires the admin secret.
func (s *Session) DestroyRoom(ctx context.Context, roomID domain.RoomID) error {
	body := map[string]any{"request": "destroy", "room": int64(roomID)}
	if s.cfg.AdminSecret != "" {
		body["admin_key"] = s.cfg.AdminSecret
	}
	data, err := s.pluginReply(ctx, s.PublisherHandle(), body)
	if err != nil {
		return err
	}
	if data.Videoroom != "destroyed" {
		return &RoomError{Room: int64(roomID), Code: data.ErrorCode, Reason: data.Error}
	}
	return nil
}

// Kick removes a participant from a room; privileged.
func (s *Session) Kick(ctx context.Context, roomID domain.RoomID, feedID int64) error {
	body := map[string]any{"request": "kick", "room": int64(roomID), "id": feedID}
	if s.cfg.AdminSecret != "" {
		body["admin_key"] = s.cfg.AdminSecret
	}
	data, err := s.pluginReply(ctx, s.PublisherHandle(), body)
	if err != nil {
		return err
	}
	if data.Videoroom != replySuccess {
		return &RoomError{Room: int64(roomID), Code: data.ErrorCode, Reason: data.Error}
	}
	return nil
}

// ListRooms returns the gateway's own room listing.
func (s *Session) ListRooms(ctx context.Context) ([]domain.RoomInfo, error) {
	data, err := s.pluginReply(ctx, s.PublisherHandle(), map[string]any{"request": "list"})
	if err != nil {
		return nil, err
	}
	if data.Videoroom != replySuccess {
		return nil, &RoomError{Code: data.ErrorCode, Reason: data.Error}
	}
	rooms := make([]domain.RoomInfo, 0, len(data.Rooms))
	for _, r := range data.Rooms {
		rooms = append(rooms, domain.RoomInfo{
			ID:            domain.RoomID(r.Room),
			Name:          r.Description,
			MaxPublishers: r.MaxPublishers,
			Participants:  r.NumParticipants,
			Status:        domain.RoomActive,
			CreatedAt:     s.clock.Now().UTC(),
		})
	}
	return rooms, nil
}

// RoomExists asks whether a room is known to the gateway.
func (s *Session) RoomExists(ctx context.Context, roomID domain.RoomID) (bool, error) {
	data, err := s.pluginReply(ctx, s.PublisherHandle(), map[string]any{
		"request": "exists",
		"room":    int64(roomID),
	})
	if err != nil {
		return false, err
	}
	return data.Exists, nil
}

// ListParticipants returns the current participants of a room.
func (s *Session) ListParticipants(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	data, err := s.pluginReply(ctx, s.PublisherHandle(), map[string]any{
		"request": "listparticipants",
		"room":    int64(roomID),
	})
	if err != nil {
		return nil, err
	}
	if data.Videoroom != "participants" {
		return nil, &RoomError{Room: int64(roomID), Code: data.ErrorCode, Reason: data.Error}
	}
	out := make([]domain.Participant, 0, len(data.Participants))
	for _, p := range data.Participants {
		out = append(out, domain.Participant{
			ID:          p.ID,
			DisplayName: p.Display,
			Publisher:   p.Publisher,
			Talking:     p.Talking,
		})
	}
	return out, nil
}

// Room returns the currently joined room id, zero when not joined.
func (s *Session) Room() domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.RoomID(s.room)
}

func (s *Session) setRoomState(st RoomState) {
	s.mu.Lock()
	s.roomState = st
	s.mu.Unlock()
}

// DefaultConfig mirrors the gateway client defaults of the browser side.
func DefaultConfig(url, adminSecret string) Config {
	return Config{
		URL:               url,
		AdminSecret:       adminSecret,
		ConnectTimeout:    8 * time.Second,
		RequestTimeout:    10 * time.Second,
		EventTimeout:      8 * time.Second,
		KeepaliveInterval: 25 * time.Second,
	}
}
