package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered user.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Room represents a chat room.
type Room struct {
	ID        string
	Name      string
	CreatedBy string
	IsPrivate bool
	CreatedAt time.Time
}

// Participant represents a user's membership in a room.
type Participant struct {
	ID       string
	RoomID   string
	UserID   string
	JoinedAt time.Time
}

// Message represents a persisted chat message.
// ID and CreatedAt are assigned by the store at append time.
type Message struct {
	ID        string
	RoomID    string
	SenderID  string
	Content   string
	CreatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with a hashed password.
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// ListUsers lists all users.
	ListUsers(ctx context.Context) ([]*User, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom creates a new room owned by createdBy.
	CreateRoom(ctx context.Context, name, createdBy string, isPrivate bool) (*Room, error)

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id string) (*Room, error)

	// RoomExists reports whether a room with the given ID exists.
	RoomExists(ctx context.Context, id string) (bool, error)

	// ListRooms lists all rooms.
	ListRooms(ctx context.Context) ([]*Room, error)

	// UpdateRoom updates a room's name and privacy flag.
	UpdateRoom(ctx context.Context, id, name string, isPrivate bool) (*Room, error)

	// DeleteRoom deletes a room along with its messages and participants.
	DeleteRoom(ctx context.Context, id string) error
}

// ParticipantStore handles room membership persistence.
type ParticipantStore interface {
	// AddParticipant adds a user to a room.
	AddParticipant(ctx context.Context, roomID, userID string) (*Participant, error)

	// RemoveParticipant removes a user from a room.
	RemoveParticipant(ctx context.Context, roomID, userID string) error

	// IsParticipant reports whether a user is a participant of a room.
	IsParticipant(ctx context.Context, roomID, userID string) (bool, error)

	// ListParticipants lists all participants of a room.
	ListParticipants(ctx context.Context, roomID string) ([]*Participant, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage durably persists a message and returns it with the
	// store-assigned ID and creation timestamp.
	AppendMessage(ctx context.Context, roomID, senderID, content string) (*Message, error)

	// ListRecentMessages returns up to limit most recent messages for a
	// room, ordered oldest to newest.
	ListRecentMessages(ctx context.Context, roomID string, limit int) ([]*Message, error)

	// GetMessageByID retrieves a message by ID.
	GetMessageByID(ctx context.Context, id string) (*Message, error)

	// DeleteMessage deletes a single message.
	DeleteMessage(ctx context.Context, id string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	ParticipantStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
