package proto

import (
	"time"

	"github.com/chatly/chatly-server/internal/store"
)

// Envelope types sent to clients over the live connection.
const (
	TypeSystem      = "system"
	TypeOnlineUsers = "online_users"
	TypeHistory     = "history"
	TypeMessage     = "message"
	TypeError       = "error"
)

// Envelope is the discriminated wire record exchanged over the live
// connection. Only the fields relevant to Type are populated.
type Envelope struct {
	Type      string       `json:"type"`
	Content   string       `json:"content,omitempty"`
	Timestamp string       `json:"timestamp,omitempty"`
	Users     []OnlineUser `json:"users,omitempty"`
	Message   *HistoryItem `json:"message,omitempty"`
	Sender    string       `json:"sender,omitempty"`
}

// OnlineUser identifies one live participant in a room.
type OnlineUser struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// HistoryItem is a persisted message replayed to a joining client.
type HistoryItem struct {
	ID        string `json:"id"`
	RoomID    string `json:"room_id"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// SystemJoined announces that a user joined the room.
func SystemJoined(username string, at time.Time) Envelope {
	return Envelope{
		Type:      TypeSystem,
		Content:   username + " joined the chat.",
		Timestamp: formatTime(at),
	}
}

// SystemLeft announces that a user left the room.
func SystemLeft(username string, at time.Time) Envelope {
	return Envelope{
		Type:      TypeSystem,
		Content:   username + " left the chat.",
		Timestamp: formatTime(at),
	}
}

// OnlineUsers carries a presence snapshot of a room. Every recipient
// of a room broadcast is itself online, so a delivered snapshot is
// never empty.
func OnlineUsers(users []OnlineUser) Envelope {
	return Envelope{
		Type:  TypeOnlineUsers,
		Users: users,
	}
}

// History wraps one persisted message for replay to a joining client.
func History(msg *store.Message) Envelope {
	return Envelope{
		Type: TypeHistory,
		Message: &HistoryItem{
			ID:        msg.ID,
			RoomID:    msg.RoomID,
			SenderID:  msg.SenderID,
			Content:   msg.Content,
			CreatedAt: formatTime(msg.CreatedAt),
		},
	}
}

// ChatMessage announces a newly persisted chat message to the room.
func ChatMessage(sender string, msg *store.Message) Envelope {
	return Envelope{
		Type:      TypeMessage,
		Sender:    sender,
		Content:   msg.Content,
		Timestamp: formatTime(msg.CreatedAt),
	}
}

// Error carries a human-readable diagnostic back to the offending sender.
func Error(content string) Envelope {
	return Envelope{
		Type:    TypeError,
		Content: content,
	}
}
