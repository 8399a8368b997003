package hub

import (
	"sync"

	"github.com/google/uuid"

	"github.com/chatly/chatly-server/internal/proto"
)

// outboundBuffer bounds the per-session delivery queue. A session that
// falls further behind than this has envelopes dropped rather than
// stalling broadcasts to the rest of the room.
const outboundBuffer = 64

// Session is one live, authenticated connection of a user to exactly
// one room. It is created after a successful join and destroyed on
// disconnect; it is never persisted.
type Session struct {
	ID       string
	UserID   string
	Username string
	RoomID   string

	out  chan proto.Envelope
	done chan struct{}
	once sync.Once
}

// NewSession constructs a session with an initialized outbound queue.
func NewSession(userID, username, roomID string) *Session {
	return &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		RoomID:   roomID,
		out:      make(chan proto.Envelope, outboundBuffer),
		done:     make(chan struct{}),
	}
}

// TrySend queues an envelope for delivery without blocking. It reports
// false if the session is closed or its queue is full; the envelope is
// dropped in both cases.
func (s *Session) TrySend(env proto.Envelope) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.out <- env:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// Outbound returns the channel the transport drains to deliver
// envelopes to the peer.
func (s *Session) Outbound() <-chan proto.Envelope {
	return s.out
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close marks the session closed. Safe to call multiple times and from
// multiple goroutines; only the first call has effect.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}
