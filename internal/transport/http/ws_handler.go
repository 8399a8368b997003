package http

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatly/chatly-server/internal/auth"
	"github.com/chatly/chatly-server/internal/hub"
	"github.com/chatly/chatly-server/internal/proto"
	"github.com/chatly/chatly-server/internal/store"
)

// WSHandler upgrades HTTP connections and runs the live chat session
// loop against the hub.
type WSHandler struct {
	hub          *hub.Hub
	authService  *auth.Service
	store        store.Store
	historyLimit int
	log          *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(h *hub.Hub, authService *auth.Service, st store.Store, historyLimit int, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:          h,
		authService:  authService,
		store:        st,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// Handle serves GET /ws/chat/:room_id.
//
// The bearer token is taken from the "token" query parameter (browsers
// cannot set headers on websocket dials) or the Authorization header.
func (h *WSHandler) Handle(c *gin.Context) {
	roomID := c.Param("room_id")

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}

	claims, err := h.authService.ValidateToken(bearerToken(c))
	if err != nil {
		h.log.Debug().Err(err).Str("room_id", roomID).Msg("ws auth rejected")
		conn.Close(websocket.StatusPolicyViolation, "authentication required")
		return
	}

	ctx := c.Request.Context()

	exists, err := h.store.RoomExists(ctx, roomID)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("room lookup failed")
		conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	if !exists {
		conn.Close(websocket.StatusPolicyViolation, "room not found")
		return
	}

	sess := hub.NewSession(claims.UserID, claims.Username, roomID)
	h.hub.Join(roomID, sess)

	// Cleanup must run exactly once no matter which code path detects
	// the disconnect. Leave is idempotent, but the left announcement
	// and presence refresh must not be duplicated.
	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			sess.Close()
			h.hub.Leave(roomID, sess)
			h.hub.Broadcast(roomID, proto.SystemLeft(claims.Username, time.Now()), nil)
			h.hub.Broadcast(roomID, proto.OnlineUsers(h.hub.ListOnline(roomID)), nil)
			h.log.Info().
				Str("room_id", roomID).
				Str("username", claims.Username).
				Msg("session closed")
		})
	}
	defer cleanup()

	// Announce the join to the whole room, the joiner included, then
	// push a presence snapshot and replay recent history to the joiner.
	h.hub.Broadcast(roomID, proto.SystemJoined(claims.Username, time.Now()), nil)
	h.hub.Broadcast(roomID, proto.OnlineUsers(h.hub.ListOnline(roomID)), nil)

	history, err := h.store.ListRecentMessages(ctx, roomID, h.historyLimit)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("history fetch failed")
		cleanup()
		conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	for _, msg := range history {
		sess.TrySend(proto.History(msg))
	}

	h.log.Info().
		Str("room_id", roomID).
		Str("username", claims.Username).
		Msg("session joined")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	sess.Close()
	<-errCh

	cleanup()
	conn.Close(closeStatus(err), closeReason(err))
}

// readLoop receives inbound frames, persists well-formed messages, and
// broadcasts each persisted result to the room, sender included.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *hub.Session) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		// Non-text frames and broken encodings are transient input
		// faults: reply to the sender and keep the session alive.
		if typ != websocket.MessageText || !utf8.Valid(data) {
			sess.TrySend(proto.Error("Invalid message format. Please send text only."))
			continue
		}

		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}

		// Persist before taking any broadcast path; the store assigns
		// the message ID and timestamp.
		msg, err := h.store.AppendMessage(ctx, sess.RoomID, sess.UserID, text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.log.Warn().Err(err).
				Str("room_id", sess.RoomID).
				Str("user_id", sess.UserID).
				Msg("message persist failed, dropping")
			continue
		}

		h.hub.Broadcast(sess.RoomID, proto.ChatMessage(sess.Username, msg), nil)
	}
}

// writeLoop drains the session's outbound queue onto the connection.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *hub.Session) error {
	for {
		select {
		case env := <-sess.Outbound():
			if err := wsjson.Write(ctx, conn, env); err != nil {
				h.log.Debug().Err(err).Str("user_id", sess.UserID).Msg("write ws envelope")
				return err
			}
		case <-sess.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func bearerToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// closeStatus maps a session loop failure onto the websocket close
// code sent to the peer: normal closure for peer-initiated disconnect,
// internal error for anything unexpected.
func closeStatus(err error) websocket.StatusCode {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return websocket.StatusNormalClosure
	}
	if s := websocket.CloseStatus(err); s != -1 {
		return websocket.StatusNormalClosure
	}
	return websocket.StatusInternalError
}

func closeReason(err error) string {
	if closeStatus(err) == websocket.StatusNormalClosure {
		return "closing"
	}
	return "internal error"
}
