package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkoca/huddle/internal/domain"
)

// replyWith answers every plugin message synchronously with the given
// videoroom payload.
func replyWith(data map[string]any) func(req map[string]any) []map[string]any {
	return func(req map[string]any) []map[string]any {
		if req["janus"] != verbMessage {
			return nil
		}
		tx, _ := req["transaction"].(string)
		return []map[string]any{pluginEvent(tx, testHandleID, data)}
	}
}

func TestCreateRoom(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		s, tr, _ := newTestSession(t, replyWith(map[string]any{"videoroom": "created", "room": 1234}))
		require.NoError(t, s.CreateRoom(context.Background(), 1234, "standup", 6))

		frame := tr.lastSent()
		body := frame["body"].(map[string]any)
		assert.Equal(t, "create", body["request"])
		assert.Equal(t, float64(1234), body["room"])
		assert.Equal(t, "standup", body["description"])
		assert.Equal(t, float64(6), body["publishers"])
	})

	t.Run("already exists is success", func(t *testing.T) {
		s, _, _ := newTestSession(t, replyWith(map[string]any{
			"videoroom":  "event",
			"error_code": codeRoomExists,
			"error":      "Room 1234 already exists",
		}))
		require.NoError(t, s.CreateRoom(context.Background(), 1234, "standup", 6))
	})

	t.Run("other errors surface", func(t *testing.T) {
		s, _, _ := newTestSession(t, replyWith(map[string]any{
			"videoroom":  "event",
			"error_code": 429,
			"error":      "Missing mandatory element",
		}))
		err := s.CreateRoom(context.Background(), 999, "bad", 6)
		var roomErr *RoomError
		require.ErrorAs(t, err, &roomErr)
		assert.Equal(t, 429, roomErr.Code)
		assert.Equal(t, int64(999), roomErr.Room)
	})

	t.Run("admin secret attached when configured", func(t *testing.T) {
		tr := newFakeTransport()
		tr.reply = func(req map[string]any) []map[string]any {
			if replies := handshakeReplies(req); replies != nil {
				return replies
			}
			return replyWith(map[string]any{"videoroom": "created", "room": 1})(req)
		}
		cfg := testConfig()
		cfg.AdminSecret = "supersecret"
		s := NewSession(cfg, &fakeDialer{tr: tr}, newFakeClock(), UUIDTxIDs())
		require.NoError(t, s.Connect(context.Background()))
		t.Cleanup(s.Close)

		require.NoError(t, s.CreateRoom(context.Background(), 1, "x", 2))
		body := tr.lastSent()["body"].(map[string]any)
		assert.Equal(t, "supersecret", body["admin_key"])
	})
}

func TestJoinAsPublisher(t *testing.T) {
	// The join is asynchronous: the transaction gets an ack, the joined
	// event arrives separately on the publisher handle.
	s, tr, _ := newTestSession(t, func(req map[string]any) []map[string]any {
		if req["janus"] != verbMessage {
			return nil
		}
		return append(ackFor(req), pluginEvent("", testHandleID, map[string]any{
			"videoroom":  "joined",
			"room":       1234,
			"id":         5678,
			"private_id": 42,
			"publishers": []map[string]any{
				{"id": 9001, "display": "bob"},
				{"id": 9002, "display": "carol"},
			},
		}))
	})

	feeds, err := s.JoinAsPublisher(context.Background(), 1234, "alice")
	require.NoError(t, err)

	assert.Equal(t, RoomJoined, s.RoomState())
	assert.Equal(t, int64(5678), s.LocalFeedID())
	assert.Equal(t, domain.RoomID(1234), s.Room())

	require.Len(t, feeds, 2)
	assert.Equal(t, int64(9001), feeds[0].ID)
	assert.Equal(t, "bob", feeds[0].DisplayName)

	// The join request never proposes a feed id; the gateway assigns it.
	var join map[string]any
	for _, f := range tr.sentFrames() {
		if body, ok := f["body"].(map[string]any); ok && body["request"] == "join" {
			join = body
		}
	}
	require.NotNil(t, join)
	assert.Equal(t, "publisher", join["ptype"])
	assert.Equal(t, "alice", join["display"])
	assert.NotContains(t, join, "id")
}

func TestJoinAsPublisherMissingID(t *testing.T) {
	s, _, _ := newTestSession(t, func(req map[string]any) []map[string]any {
		if req["janus"] != verbMessage {
			return nil
		}
		return append(ackFor(req), pluginEvent("", testHandleID, map[string]any{
			"videoroom": "joined",
			"room":      1234,
		}))
	})

	_, err := s.JoinAsPublisher(context.Background(), 1234, "alice")
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, RoomNotJoined, s.RoomState())
}

func TestPublishSendsOfferAndTransitions(t *testing.T) {
	s, tr, _ := newTestSession(t, func(req map[string]any) []map[string]any {
		if req["janus"] != verbMessage {
			return nil
		}
		return ackFor(req)
	})

	require.NoError(t, s.Publish(context.Background(), "v=0 offer"))
	assert.Equal(t, RoomPublishing, s.RoomState())

	frame := tr.lastSent()
	jsep := frame["jsep"].(map[string]any)
	assert.Equal(t, "offer", jsep["type"])
	assert.Equal(t, "v=0 offer", jsep["sdp"])
	body := frame["body"].(map[string]any)
	assert.Equal(t, "publish", body["request"])
}

func TestJoinAsSubscriberClosesPCOnSwitch(t *testing.T) {
	s, tr, _ := newTestSession(t, func(req map[string]any) []map[string]any {
		if req["janus"] != verbMessage {
			return nil
		}
		return ackFor(req)
	})

	require.NoError(t, s.JoinAsSubscriber(context.Background(), 333, 1234, 5678))

	body := tr.lastSent()["body"].(map[string]any)
	assert.Equal(t, "join", body["request"])
	assert.Equal(t, "subscriber", body["ptype"])
	assert.Equal(t, float64(5678), body["feed"])
	assert.Equal(t, true, body["close_pc"])
	assert.Equal(t, float64(333), tr.lastSent()["handle_id"])
}

func TestLeaveResetsLocalFeed(t *testing.T) {
	s, _, _ := newTestSession(t, func(req map[string]any) []map[string]any {
		if req["janus"] != verbMessage {
			return nil
		}
		return ackFor(req)
	})

	s.mu.Lock()
	s.localFeedID = 5678
	s.roomState = RoomPublishing
	s.mu.Unlock()

	require.NoError(t, s.Leave(context.Background()))
	assert.Equal(t, RoomLeft, s.RoomState())
	assert.Zero(t, s.LocalFeedID())
}

func TestDestroyRoom(t *testing.T) {
	t.Run("destroyed", func(t *testing.T) {
		s, _, _ := newTestSession(t, replyWith(map[string]any{"videoroom": "destroyed", "room": 1234}))
		require.NoError(t, s.DestroyRoom(context.Background(), 1234))
	})

	t.Run("rejection", func(t *testing.T) {
		s, _, _ := newTestSession(t, replyWith(map[string]any{
			"videoroom":  "event",
			"error_code": 426,
			"error":      "No such room",
		}))
		var roomErr *RoomError
		require.ErrorAs(t, s.DestroyRoom(context.Background(), 1234), &roomErr)
	})
}

func TestKick(t *testing.T) {
	s, tr, _ := newTestSession(t, replyWith(map[string]any{"videoroom": "success"}))
	require.NoError(t, s.Kick(context.Background(), 1234, 9001))

	body := tr.lastSent()["body"].(map[string]any)
	assert.Equal(t, "kick", body["request"])
	assert.Equal(t, float64(9001), body["id"])
}

func TestListRooms(t *testing.T) {
	s, _, _ := newTestSession(t, replyWith(map[string]any{
		"videoroom": "success",
		"rooms": []map[string]any{
			{"room": 1234, "description": "standup", "max_publishers": 6, "num_participants": 2},
			{"room": 5678, "description": "retro", "max_publishers": 10, "num_participants": 0},
		},
	}))

	rooms, err := s.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, domain.RoomID(1234), rooms[0].ID)
	assert.Equal(t, "standup", rooms[0].Name)
	assert.Equal(t, 6, rooms[0].MaxPublishers)
	assert.Equal(t, 2, rooms[0].Participants)
	assert.Equal(t, domain.RoomActive, rooms[0].Status)
}

func TestRoomExists(t *testing.T) {
	s, _, _ := newTestSession(t, replyWith(map[string]any{
		"videoroom": "success",
		"room":      1234,
		"exists":    true,
	}))

	exists, err := s.RoomExists(context.Background(), 1234)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestListParticipants(t *testing.T) {
	s, _, _ := newTestSession(t, replyWith(map[string]any{
		"videoroom": "participants",
		"room":      1234,
		"participants": []map[string]any{
			{"id": 5678, "display": "alice", "publisher": true, "talking": true},
			{"id": 9001, "display": "bob", "publisher": false},
		},
	}))

	parts, err := s.ListParticipants(context.Background(), 1234)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "alice", parts[0].DisplayName)
	assert.True(t, parts[0].Publisher)
	assert.True(t, parts[0].Talking)
	assert.False(t, parts[1].Publisher)
}

func TestAttachAndDetachSubscriberHandle(t *testing.T) {
	s, tr, _ := newTestSession(t, func(req map[string]any) []map[string]any {
		if req["janus"] == verbDetach {
			return ackFor(req)
		}
		return nil
	})

	handleID, err := s.AttachHandle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testHandleID, handleID)

	require.NoError(t, s.DetachHandle(context.Background(), handleID))
	assert.Equal(t, verbDetach, tr.lastSent()["janus"])
	assert.Equal(t, float64(testHandleID), tr.lastSent()["handle_id"])
}
