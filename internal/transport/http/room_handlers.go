package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatly/chatly-server/internal/store"
)

// RoomHandlers provides HTTP handlers for room management endpoints.
type RoomHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(st store.Store, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		store: st,
		log:   logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Name      string `json:"name" binding:"required,min=1,max=100"`
	IsPrivate *bool  `json:"is_private"`
}

// UpdateRoomRequest represents the update room request body.
type UpdateRoomRequest struct {
	Name      string `json:"name" binding:"required,min=1,max=100"`
	IsPrivate *bool  `json:"is_private"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedBy string `json:"created_by,omitempty"`
	IsPrivate bool   `json:"is_private"`
	CreatedAt string `json:"created_at"`
}

func roomResponse(room *store.Room) RoomResponse {
	return RoomResponse{
		ID:        room.ID,
		Name:      room.Name,
		CreatedBy: room.CreatedBy,
		IsPrivate: room.IsPrivate,
		CreatedAt: room.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// CreateRoom handles room creation.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	isPrivate := true
	if req.IsPrivate != nil {
		isPrivate = *req.IsPrivate
	}

	room, err := h.store.CreateRoom(c.Request.Context(), req.Name, uid, isPrivate)
	if err != nil {
		h.log.Error().Err(err).Str("room_name", req.Name).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_id", room.ID).Str("room_name", room.Name).Msg("room created")
	c.JSON(http.StatusCreated, roomResponse(room))
}

// ListRooms handles listing all rooms.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms, err := h.store.ListRooms(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, roomResponse(room))
	}

	c.JSON(http.StatusOK, response)
}

// GetRoom handles fetching a single room.
// GET /api/rooms/:room_id
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	room, err := h.store.GetRoomByID(c.Request.Context(), c.Param("room_id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat room not found"})
			return
		}
		h.log.Error().Err(err).Str("room_id", c.Param("room_id")).Msg("failed to get room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, roomResponse(room))
}

// UpdateRoom handles room updates; only the creator may update.
// PUT /api/rooms/:room_id
func (h *RoomHandlers) UpdateRoom(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req UpdateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid update room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	roomID := c.Param("room_id")
	room, err := h.store.GetRoomByID(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat room not found"})
			return
		}
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to get room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if room.CreatedBy != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not authorized to update this room"})
		return
	}

	isPrivate := room.IsPrivate
	if req.IsPrivate != nil {
		isPrivate = *req.IsPrivate
	}

	updated, err := h.store.UpdateRoom(c.Request.Context(), roomID, req.Name, isPrivate)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to update room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, roomResponse(updated))
}

// DeleteRoom handles room deletion; only the creator may delete.
// DELETE /api/rooms/:room_id
func (h *RoomHandlers) DeleteRoom(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	roomID := c.Param("room_id")
	room, err := h.store.GetRoomByID(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat room not found"})
			return
		}
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to get room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if room.CreatedBy != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not authorized to delete this room"})
		return
	}

	if err := h.store.DeleteRoom(c.Request.Context(), roomID); err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to delete room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_id", roomID).Msg("room deleted")
	c.JSON(http.StatusOK, gin.H{"detail": "chat room deleted"})
}
