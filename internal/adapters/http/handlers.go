package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tkoca/huddle/internal/domain"
	"github.com/tkoca/huddle/internal/gateway"
)

// VideoService is what the REST surface needs from the video orchestrator.
type VideoService interface {
	CreateRoom(ctx context.Context, roomID domain.RoomID, name string, capacity int) error
	DestroyRoom(ctx context.Context, roomID domain.RoomID) error
	JoinRoom(ctx context.Context, roomID domain.RoomID, display string) error
	LeaveRoom(ctx context.Context) error
	Kick(ctx context.Context, roomID domain.RoomID, feedID int64) error
	ListRooms(ctx context.Context) ([]domain.RoomInfo, error)
	RoomExists(ctx context.Context, roomID domain.RoomID) (bool, error)
	ListParticipants(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error)
}

type RoomHandlers struct {
	Video VideoService
}

type CreateRoomRequest struct {
	ID       int64  `json:"id" binding:"required"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

type JoinRoomRequest struct {
	Display string `json:"display" binding:"required"`
}

type KickRequest struct {
	FeedID int64 `json:"feed_id" binding:"required"`
}

func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid room id"})
		return
	}
	if err := h.Video.CreateRoom(c.Request.Context(), domain.RoomID(req.ID), req.Name, req.Capacity); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": req.ID})
}

func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms, err := h.Video.ListRooms(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *RoomHandlers) DestroyRoom(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}
	if err := h.Video.DestroyRoom(c.Request.Context(), roomID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandlers) RoomExists(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}
	exists, err := h.Video.RoomExists(c.Request.Context(), roomID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

func (h *RoomHandlers) ListParticipants(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}
	parts, err := h.Video.ListParticipants(c.Request.Context(), roomID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": parts})
}

func (h *RoomHandlers) JoinRoom(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing display name"})
		return
	}
	user, err := domain.NewUser(req.Display)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Video.JoinRoom(c.Request.Context(), roomID, user.DisplayName); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": roomID, "user": user})
}

func (h *RoomHandlers) LeaveRoom(c *gin.Context) {
	if err := h.Video.LeaveRoom(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandlers) Kick(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}
	var req KickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing feed id"})
		return
	}
	if err := h.Video.Kick(c.Request.Context(), roomID, req.FeedID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func roomParam(c *gin.Context) (domain.RoomID, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return 0, false
	}
	return domain.RoomID(id), true
}

// writeError maps gateway failures onto HTTP statuses: room rejections are
// the client's fault, gateway timeouts are upstream failures.
func writeError(c *gin.Context, err error) {
	var roomErr *gateway.RoomError
	if errors.As(err, &roomErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": roomErr.Error()})
		return
	}
	var timeoutErr *gateway.TimeoutError
	if errors.As(err, &timeoutErr) {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": timeoutErr.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
