package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/chatly/chatly-server/internal/auth"
	"github.com/chatly/chatly-server/internal/config"
	"github.com/chatly/chatly-server/internal/hub"
	"github.com/chatly/chatly-server/internal/proto"
	"github.com/chatly/chatly-server/internal/store"
	"github.com/chatly/chatly-server/internal/store/sqlite"
)

// testEnv bundles a running test server with direct handles on its
// collaborators for seeding and assertions.
type testEnv struct {
	ts    *httptest.Server
	store store.Store
	auth  *auth.Service
	hub   *hub.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zerolog.Nop()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	})

	chatHub := hub.New(&logger)

	router := NewRouter(chatHub, authService, st, config.Config{
		Addr:              ":0",
		HistoryLimit:      20,
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}, &logger)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testEnv{
		ts:    ts,
		store: st,
		auth:  authService,
		hub:   chatHub,
	}
}

// registerUser creates a user through the auth service and returns it
// with a valid bearer token.
func (e *testEnv) registerUser(t *testing.T, username string) (*store.User, string) {
	t.Helper()

	_, err := e.auth.Register(context.Background(), username, username+"@example.com", "password123")
	require.NoError(t, err)

	user, token, err := e.auth.Login(context.Background(), username, "password123")
	require.NoError(t, err)

	return user, token
}

func (e *testEnv) createRoom(t *testing.T, name, ownerID string) *store.Room {
	t.Helper()

	room, err := e.store.CreateRoom(context.Background(), name, ownerID, false)
	require.NoError(t, err)
	return room
}

// dialWS opens a websocket session to the given room.
func (e *testEnv) dialWS(t *testing.T, ctx context.Context, roomID, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws/chat/" + roomID + "?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })

	return conn
}

// doJSON performs an HTTP request with an optional bearer token and
// JSON body, returning the status code and raw response body.
func (e *testEnv) doJSON(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := stdhttp.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

// readEnvelope reads the next envelope from the connection.
func readEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.Envelope {
	t.Helper()

	var env proto.Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &env))
	return env
}

// drainJoinEnvelopes consumes the system join announcement and the
// presence snapshot a freshly joined session receives about itself.
func drainJoinEnvelopes(t *testing.T, ctx context.Context, conn *websocket.Conn) {
	t.Helper()

	env := readEnvelope(t, ctx, conn)
	require.Equal(t, proto.TypeSystem, env.Type)

	env = readEnvelope(t, ctx, conn)
	require.Equal(t, proto.TypeOnlineUsers, env.Type)
}

func sendText(t *testing.T, ctx context.Context, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(text)))
}
