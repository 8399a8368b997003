// Package hub tracks which sessions are live in which room and fans
// out envelopes to them. It is the only shared mutable state in the
// server; every websocket session goroutine calls into the same Hub.
package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatly/chatly-server/internal/proto"
)

// Hub owns the room -> live sessions registry. All methods are safe
// for concurrent use by any number of session goroutines.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
	log   *zerolog.Logger
}

// New creates an empty hub.
func New(logger *zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Session]struct{}),
		log:   logger,
	}
}

// Join registers the session under roomID. The session becomes a
// broadcast target as soon as Join returns.
func (h *Hub) Join(roomID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Session]struct{})
	}
	h.rooms[roomID][s] = struct{}{}
}

// Leave removes the session from roomID. Removing an absent session is
// a no-op, which makes disconnect cleanup safe to run from racing code
// paths. The room entry is dropped once its last session leaves.
func (h *Hub) Leave(roomID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(sessions, s)
	if len(sessions) == 0 {
		delete(h.rooms, roomID)
	}
}

// Broadcast delivers env to every session currently registered under
// roomID except exclude (if non-nil). The membership snapshot is taken
// under the lock; delivery happens outside it, so a slow recipient
// cannot stall membership changes or broadcasts to other rooms. Failed
// deliveries are dropped, never surfaced to the broadcaster.
func (h *Hub) Broadcast(roomID string, env proto.Envelope, exclude *Session) {
	h.mu.RLock()
	sessions := h.rooms[roomID]
	targets := make([]*Session, 0, len(sessions))
	for s := range sessions {
		if s == exclude {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.TrySend(env) {
			h.log.Debug().
				Str("room_id", roomID).
				Str("user_id", s.UserID).
				Str("envelope", env.Type).
				Msg("dropped envelope for slow or closed session")
		}
	}
}

// ListOnline returns a snapshot of the users currently connected to
// roomID. Order is unspecified.
func (h *Hub) ListOnline(roomID string) []proto.OnlineUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessions := h.rooms[roomID]
	users := make([]proto.OnlineUser, 0, len(sessions))
	for s := range sessions {
		users = append(users, proto.OnlineUser{
			UserID:   s.UserID,
			Username: s.Username,
		})
	}
	return users
}

// RoomCount returns the number of live sessions in roomID.
func (h *Hub) RoomCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
