package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatly/chatly-server/internal/store"
)

const defaultMessageListLimit = 50

// MessageHandlers provides HTTP handlers for message history.
type MessageHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.Store, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		store: st,
		log:   logger,
	}
}

// MessageResponse represents a persisted message in API responses.
type MessageResponse struct {
	ID        string `json:"id"`
	RoomID    string `json:"room_id"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func messageResponse(msg *store.Message) MessageResponse {
	return MessageResponse{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ListByRoom returns recent messages for a room, oldest first.
// GET /api/rooms/:room_id/messages?limit=N
func (h *MessageHandlers) ListByRoom(c *gin.Context) {
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

	limit := defaultMessageListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = parsed
	}

	messages, err := h.store.ListRecentMessages(c.Request.Context(), roomID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, messageResponse(msg))
	}

	c.JSON(http.StatusOK, response)
}

// Delete deletes a message; only the sender may delete their own.
// DELETE /api/messages/:message_id
func (h *MessageHandlers) Delete(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	messageID := c.Param("message_id")
	msg, err := h.store.GetMessageByID(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.log.Error().Err(err).Str("message_id", messageID).Msg("failed to get message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if msg.SenderID != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not authorized to delete this message"})
		return
	}

	if err := h.store.DeleteMessage(c.Request.Context(), messageID); err != nil {
		h.log.Error().Err(err).Str("message_id", messageID).Msg("failed to delete message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"detail": "message deleted"})
}
