package http

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatly/chatly-server/internal/proto"
)

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestWSRejectsInvalidToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	user, _ := env.registerUser(t, "alice")
	room := env.createRoom(t, "general", user.ID)

	conn := env.dialWS(t, ctx, room.ID, "not-a-token")

	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestWSRejectsUnknownRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	_, token := env.registerUser(t, "alice")

	conn := env.dialWS(t, ctx, "00000000-0000-0000-0000-000000000000", token)

	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestWSJoinAnnouncesPresenceAndReplaysHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	user, token := env.registerUser(t, "alice")
	room := env.createRoom(t, "general", user.ID)

	for i := 0; i < 25; i++ {
		_, err := env.store.AppendMessage(ctx, room.ID, user.ID, fmt.Sprintf("msg-%02d", i))
		require.NoError(t, err)
	}

	conn := env.dialWS(t, ctx, room.ID, token)

	// The joiner sees its own join announcement first.
	joined := readEnvelope(t, ctx, conn)
	assert.Equal(t, proto.TypeSystem, joined.Type)
	assert.Equal(t, "alice joined the chat.", joined.Content)
	assert.NotEmpty(t, joined.Timestamp)

	online := readEnvelope(t, ctx, conn)
	assert.Equal(t, proto.TypeOnlineUsers, online.Type)
	require.Len(t, online.Users, 1)
	assert.Equal(t, user.ID, online.Users[0].UserID)
	assert.Equal(t, "alice", online.Users[0].Username)

	// Exactly 20 of the 25 stored messages come back, oldest first.
	for i := 0; i < 20; i++ {
		history := readEnvelope(t, ctx, conn)
		require.Equal(t, proto.TypeHistory, history.Type)
		require.NotNil(t, history.Message)
		assert.Equal(t, fmt.Sprintf("msg-%02d", i+5), history.Message.Content)
		assert.Equal(t, room.ID, history.Message.RoomID)
		assert.Equal(t, user.ID, history.Message.SenderID)
	}
}

func TestWSMessageBroadcastIncludesSender(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	alice, aliceToken := env.registerUser(t, "alice")
	_, bobToken := env.registerUser(t, "bob")
	room := env.createRoom(t, "general", alice.ID)

	aliceConn := env.dialWS(t, ctx, room.ID, aliceToken)
	drainJoinEnvelopes(t, ctx, aliceConn)

	bobConn := env.dialWS(t, ctx, room.ID, bobToken)
	drainJoinEnvelopes(t, ctx, bobConn)

	// Alice sees bob's join too.
	bobJoined := readEnvelope(t, ctx, aliceConn)
	assert.Equal(t, proto.TypeSystem, bobJoined.Type)
	assert.Equal(t, "bob joined the chat.", bobJoined.Content)
	online := readEnvelope(t, ctx, aliceConn)
	assert.Equal(t, proto.TypeOnlineUsers, online.Type)
	assert.Len(t, online.Users, 2)

	sendText(t, ctx, aliceConn, "hello room")

	// Both participants receive the broadcast, the sender included;
	// there is no separate local echo.
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		msg := readEnvelope(t, ctx, conn)
		assert.Equal(t, proto.TypeMessage, msg.Type)
		assert.Equal(t, "alice", msg.Sender)
		assert.Equal(t, "hello room", msg.Content)
		assert.NotEmpty(t, msg.Timestamp)
	}

	// The message was persisted before broadcast.
	stored, err := env.store.ListRecentMessages(ctx, room.ID, 20)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "hello room", stored[0].Content)
}

func TestWSMessagesFromOneSenderStayOrdered(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	alice, aliceToken := env.registerUser(t, "alice")
	_, bobToken := env.registerUser(t, "bob")
	room := env.createRoom(t, "general", alice.ID)

	aliceConn := env.dialWS(t, ctx, room.ID, aliceToken)
	drainJoinEnvelopes(t, ctx, aliceConn)

	bobConn := env.dialWS(t, ctx, room.ID, bobToken)
	drainJoinEnvelopes(t, ctx, bobConn)
	drainJoinEnvelopes(t, ctx, aliceConn) // bob's join as seen by alice

	for i := 0; i < 3; i++ {
		sendText(t, ctx, aliceConn, fmt.Sprintf("message %d", i))
	}

	for i := 0; i < 3; i++ {
		msg := readEnvelope(t, ctx, bobConn)
		require.Equal(t, proto.TypeMessage, msg.Type)
		assert.Equal(t, fmt.Sprintf("message %d", i), msg.Content)
	}
}

func TestWSWhitespaceOnlyPayloadIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	alice, aliceToken := env.registerUser(t, "alice")
	_, bobToken := env.registerUser(t, "bob")
	room := env.createRoom(t, "general", alice.ID)

	aliceConn := env.dialWS(t, ctx, room.ID, aliceToken)
	drainJoinEnvelopes(t, ctx, aliceConn)

	bobConn := env.dialWS(t, ctx, room.ID, bobToken)
	drainJoinEnvelopes(t, ctx, bobConn)
	drainJoinEnvelopes(t, ctx, aliceConn)

	sendText(t, ctx, aliceConn, "   \n\t  ")
	sendText(t, ctx, aliceConn, "after the blank")

	// Per-sender ordering means bob's next envelope would be the blank
	// message if it had been broadcast.
	msg := readEnvelope(t, ctx, bobConn)
	assert.Equal(t, proto.TypeMessage, msg.Type)
	assert.Equal(t, "after the blank", msg.Content)

	stored, err := env.store.ListRecentMessages(ctx, room.ID, 20)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestWSMalformedPayloadGetsErrorReply(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	alice, aliceToken := env.registerUser(t, "alice")
	_, bobToken := env.registerUser(t, "bob")
	room := env.createRoom(t, "general", alice.ID)

	aliceConn := env.dialWS(t, ctx, room.ID, aliceToken)
	drainJoinEnvelopes(t, ctx, aliceConn)

	bobConn := env.dialWS(t, ctx, room.ID, bobToken)
	drainJoinEnvelopes(t, ctx, bobConn)
	drainJoinEnvelopes(t, ctx, aliceConn)

	require.NoError(t, aliceConn.Write(ctx, websocket.MessageBinary, []byte{0xff, 0xfe, 0xfd}))

	// The sender gets exactly one error reply and the session stays up.
	errEnv := readEnvelope(t, ctx, aliceConn)
	assert.Equal(t, proto.TypeError, errEnv.Type)
	assert.NotEmpty(t, errEnv.Content)

	sendText(t, ctx, aliceConn, "still alive")

	msg := readEnvelope(t, ctx, aliceConn)
	assert.Equal(t, proto.TypeMessage, msg.Type)
	assert.Equal(t, "still alive", msg.Content)

	// Bob never saw the malformed unit, only the valid message.
	msg = readEnvelope(t, ctx, bobConn)
	assert.Equal(t, proto.TypeMessage, msg.Type)
	assert.Equal(t, "still alive", msg.Content)
}

func TestWSDisconnectNotifiesRemainingMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	alice, aliceToken := env.registerUser(t, "alice")
	_, bobToken := env.registerUser(t, "bob")
	room := env.createRoom(t, "general", alice.ID)

	aliceConn := env.dialWS(t, ctx, room.ID, aliceToken)
	drainJoinEnvelopes(t, ctx, aliceConn)

	bobConn := env.dialWS(t, ctx, room.ID, bobToken)
	drainJoinEnvelopes(t, ctx, bobConn)
	drainJoinEnvelopes(t, ctx, aliceConn)

	require.NoError(t, bobConn.Close(websocket.StatusNormalClosure, "bye"))

	left := readEnvelope(t, ctx, aliceConn)
	assert.Equal(t, proto.TypeSystem, left.Type)
	assert.Equal(t, "bob left the chat.", left.Content)

	online := readEnvelope(t, ctx, aliceConn)
	assert.Equal(t, proto.TypeOnlineUsers, online.Type)
	require.Len(t, online.Users, 1)
	assert.Equal(t, alice.ID, online.Users[0].UserID)

	assert.Equal(t, 1, env.hub.RoomCount(room.ID))
}

func TestWSAbruptDisconnectStillCleansUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	alice, aliceToken := env.registerUser(t, "alice")
	_, bobToken := env.registerUser(t, "bob")
	room := env.createRoom(t, "general", alice.ID)

	aliceConn := env.dialWS(t, ctx, room.ID, aliceToken)
	drainJoinEnvelopes(t, ctx, aliceConn)

	bobConn := env.dialWS(t, ctx, room.ID, bobToken)
	drainJoinEnvelopes(t, ctx, bobConn)
	drainJoinEnvelopes(t, ctx, aliceConn)

	// Tear down the underlying connection without a close handshake.
	require.NoError(t, bobConn.CloseNow())

	left := readEnvelope(t, ctx, aliceConn)
	assert.Equal(t, proto.TypeSystem, left.Type)
	assert.Equal(t, "bob left the chat.", left.Content)

	online := readEnvelope(t, ctx, aliceConn)
	require.Len(t, online.Users, 1)
}

func TestWSHistoryGoesOnlyToJoiner(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	alice, aliceToken := env.registerUser(t, "alice")
	_, bobToken := env.registerUser(t, "bob")
	room := env.createRoom(t, "general", alice.ID)

	_, err := env.store.AppendMessage(ctx, room.ID, alice.ID, "old message")
	require.NoError(t, err)

	aliceConn := env.dialWS(t, ctx, room.ID, aliceToken)
	drainJoinEnvelopes(t, ctx, aliceConn)
	history := readEnvelope(t, ctx, aliceConn)
	require.Equal(t, proto.TypeHistory, history.Type)

	bobConn := env.dialWS(t, ctx, room.ID, bobToken)
	drainJoinEnvelopes(t, ctx, bobConn)
	history = readEnvelope(t, ctx, bobConn)
	require.Equal(t, proto.TypeHistory, history.Type)

	// Alice sees bob's join, not bob's history replay.
	env2 := readEnvelope(t, ctx, aliceConn)
	assert.Equal(t, proto.TypeSystem, env2.Type)
	env2 = readEnvelope(t, ctx, aliceConn)
	assert.Equal(t, proto.TypeOnlineUsers, env2.Type)

	sendText(t, ctx, bobConn, "ping")
	msg := readEnvelope(t, ctx, aliceConn)
	assert.Equal(t, proto.TypeMessage, msg.Type)
	assert.Equal(t, "ping", msg.Content)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
}

// Guards against envelope schema drift between server and clients.
func TestWSEnvelopeFieldNames(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	user, token := env.registerUser(t, "alice")
	room := env.createRoom(t, "general", user.ID)

	conn := env.dialWS(t, ctx, room.ID, token)

	var raw map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &raw))
	assert.Equal(t, "system", raw["type"])
	assert.Contains(t, raw, "content")
	assert.Contains(t, raw, "timestamp")

	require.NoError(t, wsjson.Read(ctx, conn, &raw))
	assert.Equal(t, "online_users", raw["type"])
	assert.Contains(t, raw, "users")
}
