package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var created UserResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice", created.Username)

	// Duplicate registration conflicts.
	status, _ = env.doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "other@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, body = env.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var authResp AuthResponse
	require.NoError(t, json.Unmarshal(body, &authResp))
	assert.NotEmpty(t, authResp.Token)
	assert.Equal(t, created.ID, authResp.User.ID)

	status, _ = env.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []map[string]string{
		{"username": "ab", "email": "a@example.com", "password": "password123"},
		{"username": "alice", "email": "not-an-email", "password": "password123"},
		{"username": "alice", "email": "a@example.com", "password": "short"},
		{"username": "alice"},
	}

	for _, body := range cases {
		status, _ := env.doJSON(t, http.MethodPost, "/api/auth/register", "", body)
		assert.Equal(t, http.StatusBadRequest, status, fmt.Sprintf("body: %v", body))
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.doJSON(t, http.MethodGet, "/api/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.doJSON(t, http.MethodGet, "/api/rooms", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRoomCRUD(t *testing.T) {
	env := newTestEnv(t)

	_, aliceToken := env.registerUser(t, "alice")
	_, bobToken := env.registerUser(t, "bob")

	status, body := env.doJSON(t, http.MethodPost, "/api/rooms", aliceToken, map[string]any{
		"name":       "general",
		"is_private": false,
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var room RoomResponse
	require.NoError(t, json.Unmarshal(body, &room))
	assert.NotEmpty(t, room.ID)
	assert.Equal(t, "general", room.Name)
	assert.False(t, room.IsPrivate)

	status, body = env.doJSON(t, http.MethodGet, "/api/rooms", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	var rooms []RoomResponse
	require.NoError(t, json.Unmarshal(body, &rooms))
	assert.Len(t, rooms, 1)

	status, _ = env.doJSON(t, http.MethodGet, "/api/rooms/"+room.ID, bobToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = env.doJSON(t, http.MethodGet, "/api/rooms/does-not-exist", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// Only the creator may update or delete.
	status, _ = env.doJSON(t, http.MethodPut, "/api/rooms/"+room.ID, bobToken, map[string]any{
		"name": "hijacked",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = env.doJSON(t, http.MethodPut, "/api/rooms/"+room.ID, aliceToken, map[string]any{
		"name": "renamed",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	var updated RoomResponse
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "renamed", updated.Name)

	status, _ = env.doJSON(t, http.MethodDelete, "/api/rooms/"+room.ID, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.doJSON(t, http.MethodDelete, "/api/rooms/"+room.ID, aliceToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = env.doJSON(t, http.MethodGet, "/api/rooms/"+room.ID, aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestParticipantEndpoints(t *testing.T) {
	env := newTestEnv(t)

	alice, aliceToken := env.registerUser(t, "alice")
	_, bobToken := env.registerUser(t, "bob")
	room := env.createRoom(t, "general", alice.ID)

	status, body := env.doJSON(t, http.MethodPost, "/api/rooms/"+room.ID+"/participants", aliceToken, nil)
	require.Equal(t, http.StatusCreated, status, string(body))

	var p ParticipantResponse
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, alice.ID, p.UserID)
	assert.Equal(t, room.ID, p.RoomID)

	// Joining twice conflicts.
	status, _ = env.doJSON(t, http.MethodPost, "/api/rooms/"+room.ID+"/participants", aliceToken, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = env.doJSON(t, http.MethodPost, "/api/rooms/missing/participants", bobToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.doJSON(t, http.MethodPost, "/api/rooms/"+room.ID+"/participants", bobToken, nil)
	require.Equal(t, http.StatusCreated, status)

	status, body = env.doJSON(t, http.MethodGet, "/api/rooms/"+room.ID+"/participants", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	var participants []ParticipantResponse
	require.NoError(t, json.Unmarshal(body, &participants))
	assert.Len(t, participants, 2)

	status, _ = env.doJSON(t, http.MethodDelete, "/api/rooms/"+room.ID+"/participants", bobToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = env.doJSON(t, http.MethodGet, "/api/rooms/"+room.ID+"/participants", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	participants = nil
	require.NoError(t, json.Unmarshal(body, &participants))
	assert.Len(t, participants, 1)
}

func TestMessageEndpoints(t *testing.T) {
	env := newTestEnv(t)

	alice, aliceToken := env.registerUser(t, "alice")
	_, bobToken := env.registerUser(t, "bob")
	room := env.createRoom(t, "general", alice.ID)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := env.store.AppendMessage(ctx, room.ID, alice.ID, fmt.Sprintf("msg-%d", i))
		require.NoError(t, err)
	}

	status, body := env.doJSON(t, http.MethodGet, "/api/rooms/"+room.ID+"/messages", aliceToken, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var messages []MessageResponse
	require.NoError(t, json.Unmarshal(body, &messages))
	require.Len(t, messages, 5)
	assert.Equal(t, "msg-0", messages[0].Content)
	assert.Equal(t, "msg-4", messages[4].Content)

	status, body = env.doJSON(t, http.MethodGet, "/api/rooms/"+room.ID+"/messages?limit=2", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	messages = nil
	require.NoError(t, json.Unmarshal(body, &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, "msg-3", messages[0].Content)

	status, _ = env.doJSON(t, http.MethodGet, "/api/rooms/"+room.ID+"/messages?limit=zero", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.doJSON(t, http.MethodGet, "/api/rooms/missing/messages", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// Only the sender may delete their message.
	status, _ = env.doJSON(t, http.MethodDelete, "/api/messages/"+messages[0].ID, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.doJSON(t, http.MethodDelete, "/api/messages/"+messages[0].ID, aliceToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = env.doJSON(t, http.MethodDelete, "/api/messages/"+messages[0].ID, aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUserEndpoints(t *testing.T) {
	env := newTestEnv(t)

	alice, aliceToken := env.registerUser(t, "alice")
	bob, _ := env.registerUser(t, "bob")

	status, body := env.doJSON(t, http.MethodGet, "/api/users", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)

	var users []UserResponse
	require.NoError(t, json.Unmarshal(body, &users))
	require.Len(t, users, 1)
	assert.Equal(t, bob.ID, users[0].ID)

	status, body = env.doJSON(t, http.MethodGet, "/api/users/"+alice.ID, aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	var fetched UserResponse
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, "alice", fetched.Username)

	status, _ = env.doJSON(t, http.MethodGet, "/api/users/missing", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
