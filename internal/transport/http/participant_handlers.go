package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatly/chatly-server/internal/store"
)

// ParticipantHandlers provides HTTP handlers for room membership.
type ParticipantHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewParticipantHandlers creates a new participant handlers instance.
func NewParticipantHandlers(st store.Store, logger *zerolog.Logger) *ParticipantHandlers {
	return &ParticipantHandlers{
		store: st,
		log:   logger,
	}
}

// ParticipantResponse represents a room participant in API responses.
type ParticipantResponse struct {
	ID       string `json:"id"`
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	JoinedAt string `json:"joined_at"`
}

func participantResponse(p *store.Participant) ParticipantResponse {
	return ParticipantResponse{
		ID:       p.ID,
		RoomID:   p.RoomID,
		UserID:   p.UserID,
		JoinedAt: p.JoinedAt.UTC().Format(time.RFC3339),
	}
}

// Join adds the current user to the room.
// POST /api/rooms/:room_id/participants
func (h *ParticipantHandlers) Join(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	roomID := c.Param("room_id")
	exists, err := h.store.RoomExists(c.Request.Context(), roomID)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("room lookup failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat room not found"})
		return
	}

	already, err := h.store.IsParticipant(c.Request.Context(), roomID, uid)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("participant lookup failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if already {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "already a participant"})
		return
	}

	p, err := h.store.AddParticipant(c.Request.Context(), roomID, uid)
	if err != nil {
		// UNIQUE(room_id, user_id) covers a concurrent double join.
		if strings.Contains(err.Error(), "UNIQUE") {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "already a participant"})
			return
		}
		h.log.Error().Err(err).Str("room_id", roomID).Str("user_id", uid).Msg("failed to add participant")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_id", roomID).Str("user_id", uid).Msg("participant joined room")
	c.JSON(http.StatusCreated, participantResponse(p))
}

// Leave removes the current user from the room.
// DELETE /api/rooms/:room_id/participants
func (h *ParticipantHandlers) Leave(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	roomID := c.Param("room_id")
	if err := h.store.RemoveParticipant(c.Request.Context(), roomID, uid); err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Str("user_id", uid).Msg("failed to remove participant")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"detail": "left the room"})
}

// List lists all participants of the room.
// GET /api/rooms/:room_id/participants
func (h *ParticipantHandlers) List(c *gin.Context) {
	roomID := c.Param("room_id")
	if _, err := h.store.GetRoomByID(c.Request.Context(), roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat room not found"})
			return
		}
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to get room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	participants, err := h.store.ListParticipants(c.Request.Context(), roomID)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to list participants")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ParticipantResponse, 0, len(participants))
	for _, p := range participants {
		response = append(response, participantResponse(p))
	}

	c.JSON(http.StatusOK, response)
}
