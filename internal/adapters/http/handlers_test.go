package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkoca/huddle/internal/domain"
	"github.com/tkoca/huddle/internal/gateway"
)

type fakeVideoService struct {
	created   []domain.RoomID
	joined    []string
	kicked    []int64
	destroyed []domain.RoomID
	left      int
	err       error
}

func (f *fakeVideoService) CreateRoom(_ context.Context, roomID domain.RoomID, _ string, _ int) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, roomID)
	return nil
}

func (f *fakeVideoService) DestroyRoom(_ context.Context, roomID domain.RoomID) error {
	if f.err != nil {
		return f.err
	}
	f.destroyed = append(f.destroyed, roomID)
	return nil
}

func (f *fakeVideoService) JoinRoom(_ context.Context, _ domain.RoomID, display string) error {
	if f.err != nil {
		return f.err
	}
	f.joined = append(f.joined, display)
	return nil
}

func (f *fakeVideoService) LeaveRoom(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.left++
	return nil
}

func (f *fakeVideoService) Kick(_ context.Context, _ domain.RoomID, feedID int64) error {
	if f.err != nil {
		return f.err
	}
	f.kicked = append(f.kicked, feedID)
	return nil
}

func (f *fakeVideoService) ListRooms(context.Context) ([]domain.RoomInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.RoomInfo{{ID: 1234, Name: "standup", Status: domain.RoomActive}}, nil
}

func (f *fakeVideoService) RoomExists(context.Context, domain.RoomID) (bool, error) {
	return f.err == nil, f.err
}

func (f *fakeVideoService) ListParticipants(context.Context, domain.RoomID) ([]domain.Participant, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Participant{{ID: 5678, DisplayName: "alice", Publisher: true}}, nil
}

func newTestRouter(svc VideoService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := &RoomHandlers{Video: svc}
	api := r.Group("/api")
	api.POST("/rooms", h.CreateRoom)
	api.GET("/rooms", h.ListRooms)
	api.DELETE("/rooms/:id", h.DestroyRoom)
	api.GET("/rooms/:id/exists", h.RoomExists)
	api.GET("/rooms/:id/participants", h.ListParticipants)
	api.POST("/rooms/:id/join", h.JoinRoom)
	api.POST("/rooms/:id/leave", h.LeaveRoom)
	api.POST("/rooms/:id/kick", h.Kick)
	return r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateRoomEndpoint(t *testing.T) {
	svc := &fakeVideoService{}
	r := newTestRouter(svc)

	w := doJSON(r, http.MethodPost, "/api/rooms", `{"id":1234,"name":"standup","capacity":6}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []domain.RoomID{1234}, svc.created)

	w = doJSON(r, http.MethodPost, "/api/rooms", `{"name":"no id"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJoinAndLeaveEndpoints(t *testing.T) {
	svc := &fakeVideoService{}
	r := newTestRouter(svc)

	w := doJSON(r, http.MethodPost, "/api/rooms/1234/join", `{"display":"alice"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"alice"}, svc.joined)

	var joinResp struct {
		User domain.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &joinResp))
	assert.Equal(t, "alice", joinResp.User.DisplayName)
	assert.NotEmpty(t, joinResp.User.ID)

	w = doJSON(r, http.MethodPost, "/api/rooms/1234/join", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	longName := strings.Repeat("x", domain.MaxDisplayNameLen+1)
	w = doJSON(r, http.MethodPost, "/api/rooms/1234/join", `{"display":"`+longName+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, svc.joined, 1, "invalid display names must never reach the orchestrator")

	w = doJSON(r, http.MethodPost, "/api/rooms/not-a-number/join", `{"display":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/rooms/1234/leave", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, svc.left)
}

func TestListAndIntrospectionEndpoints(t *testing.T) {
	svc := &fakeVideoService{}
	r := newTestRouter(svc)

	w := doJSON(r, http.MethodGet, "/api/rooms", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listResp struct {
		Rooms []domain.RoomInfo `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	require.Len(t, listResp.Rooms, 1)
	assert.Equal(t, domain.RoomID(1234), listResp.Rooms[0].ID)

	w = doJSON(r, http.MethodGet, "/api/rooms/1234/exists", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"exists":true}`, w.Body.String())

	w = doJSON(r, http.MethodGet, "/api/rooms/1234/participants", "")
	require.Equal(t, http.StatusOK, w.Code)
	var partResp struct {
		Participants []domain.Participant `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &partResp))
	require.Len(t, partResp.Participants, 1)
	assert.Equal(t, "alice", partResp.Participants[0].DisplayName)
}

func TestDestroyAndKickEndpoints(t *testing.T) {
	svc := &fakeVideoService{}
	r := newTestRouter(svc)

	w := doJSON(r, http.MethodDelete, "/api/rooms/1234", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []domain.RoomID{1234}, svc.destroyed)

	w = doJSON(r, http.MethodPost, "/api/rooms/1234/kick", `{"feed_id":9001}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []int64{9001}, svc.kicked)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"room rejection", &gateway.RoomError{Room: 1234, Code: 426, Reason: "No such room"}, http.StatusBadRequest},
		{"gateway timeout", &gateway.TimeoutError{Op: "event"}, http.StatusGatewayTimeout},
		{"anything else", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&fakeVideoService{err: tc.err})
			w := doJSON(r, http.MethodPost, "/api/rooms/1234/join", `{"display":"alice"}`)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}
