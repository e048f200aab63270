package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"driftchat/internal/config"
	"driftchat/internal/protocol"
	"driftchat/internal/storage/sqlite"
)

const frameWait = 2 * time.Second

func newTestServer(t *testing.T) (*httptest.Server, *App) {
	t.Helper()
	req := require.New(t)

	cfg := config.ServerConfig{
		Database:        config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "driftchat.db")},
		JWT:             config.JWTConfig{Secret: "test-secret", Issuer: "driftchat-test", Expiration: time.Hour},
		MaxMessageBytes: 4096,
		AllowedOrigins:  []string{"*"},
	}

	store, err := sqlite.NewStore(cfg.Database)
	req.NoError(err)
	req.NoError(store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	app := NewApp(cfg, store, zerolog.Nop())
	srv := httptest.NewServer(app.Router())
	t.Cleanup(srv.Close)
	return srv, app
}

func postJSON(t *testing.T, url string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func registerUser(t *testing.T, baseURL, username string) authResponse {
	t.Helper()
	req := require.New(t)

	resp := postJSON(t, baseURL+"/api/register", credentialsRequest{Username: username, Password: "correct horse"})
	defer resp.Body.Close()
	req.Equal(http.StatusCreated, resp.StatusCode)

	var auth authResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&auth))
	req.NotEmpty(auth.Token)
	req.NotEmpty(auth.User.ID)
	return auth
}

func dialWS(t *testing.T, baseURL, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	req := require.New(t)
	req.NoError(conn.SetReadDeadline(time.Now().Add(frameWait)))
	_, frame, err := conn.ReadMessage()
	req.NoError(err)
	env, err := protocol.Unmarshal(frame)
	req.NoError(err)
	return env
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	frame, err := protocol.Marshal(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func TestChatFlowEndToEnd(t *testing.T) {
	req := require.New(t)
	srv, _ := newTestServer(t)

	alice := registerUser(t, srv.URL, "alice")
	bob := registerUser(t, srv.URL, "bob")

	aliceConn := dialWS(t, srv.URL, alice.Token)
	bobConn := dialWS(t, srv.URL, bob.Token)

	sendEvent(t, aliceConn, protocol.EventChatMessage, protocol.ChatMessageRequest{Text: "hello"})

	var published protocol.ChatMessage
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		env := readEnvelope(t, conn)
		req.Equal(protocol.EventChatMessage, env.Event)
		req.NoError(json.Unmarshal(env.Data, &published))
		req.Equal(alice.User.ID, published.UserID)
		req.Equal("alice", published.Username)
		req.Equal("hello", published.Text)
		req.NotEmpty(published.ID)
		req.False(published.Timestamp.IsZero())
	}

	// The stored message is retrievable over the history path.
	history := fetchHistory(t, srv.URL, bob.Token)
	req.Len(history, 1)
	req.Equal(published.ID, history[0].ID)

	// A non-author delete is a silent no-op. A marker message published right
	// after it must be the next frame everyone sees; a deletion notice would
	// have arrived first on bob's own ordered connection.
	sendEvent(t, bobConn, protocol.EventDeleteMessage, protocol.DeleteMessageRequest{MessageID: published.ID})
	sendEvent(t, bobConn, protocol.EventChatMessage, protocol.ChatMessageRequest{Text: "marker"})
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		env := readEnvelope(t, conn)
		req.Equal(protocol.EventChatMessage, env.Event)
	}
	req.Len(fetchHistory(t, srv.URL, bob.Token), 2)

	// The author's delete fans out to everyone and removes the record.
	sendEvent(t, aliceConn, protocol.EventDeleteMessage, protocol.DeleteMessageRequest{MessageID: published.ID})
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		env := readEnvelope(t, conn)
		req.Equal(protocol.EventMessageDeleted, env.Event)

		var deleted protocol.MessageDeleted
		req.NoError(json.Unmarshal(env.Data, &deleted))
		req.Equal(published.ID, deleted.MessageID)
	}

	// Only the marker survives.
	history = fetchHistory(t, srv.URL, bob.Token)
	req.Len(history, 1)
	req.Equal("marker", history[0].Text)
}

func TestTypingRelayAndDisconnectSynthesis(t *testing.T) {
	req := require.New(t)
	srv, _ := newTestServer(t)

	alice := registerUser(t, srv.URL, "alice")
	bob := registerUser(t, srv.URL, "bob")

	aliceConn := dialWS(t, srv.URL, alice.Token)
	bobConn := dialWS(t, srv.URL, bob.Token)

	sendEvent(t, aliceConn, protocol.EventTypingStarted, nil)

	env := readEnvelope(t, bobConn)
	req.Equal(protocol.EventUserIsTyping, env.Event)
	var typing protocol.Typing
	req.NoError(json.Unmarshal(env.Data, &typing))
	req.Equal("alice", typing.Username)

	// The sender must not receive its own signal.
	expectSilence(t, aliceConn)

	// Dropping the connection clears the stale indicator for everyone else.
	req.NoError(aliceConn.Close())
	env = readEnvelope(t, bobConn)
	req.Equal(protocol.EventUserStoppedTyping, env.Event)
}

func TestHandshakeRejectsBadCredentials(t *testing.T) {
	req := require.New(t)
	srv, _ := newTestServer(t)

	for name, token := range map[string]string{"missing": "", "invalid": "not-a-jwt"} {
		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		req.NoError(err, name)
		if resp != nil {
			resp.Body.Close()
		}

		req.NoError(conn.SetReadDeadline(time.Now().Add(frameWait)))
		_, _, err = conn.ReadMessage()
		closeErr, ok := err.(*websocket.CloseError)
		req.True(ok, name)
		req.Equal(websocket.ClosePolicyViolation, closeErr.Code, name)
		req.Contains(closeErr.Text, "authentication error", name)
		_ = conn.Close()
	}
}

func TestRegisterAndLoginValidation(t *testing.T) {
	req := require.New(t)
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/register", credentialsRequest{Username: "alice", Password: "short"})
	resp.Body.Close()
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	registerUser(t, srv.URL, "alice")

	resp = postJSON(t, srv.URL+"/api/register", credentialsRequest{Username: "alice", Password: "correct horse"})
	resp.Body.Close()
	req.Equal(http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/login", credentialsRequest{Username: "alice", Password: "wrong password"})
	resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/login", credentialsRequest{Username: "nobody", Password: "wrong password"})
	resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/login", credentialsRequest{Username: "alice", Password: "correct horse"})
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
}

func TestHistoryRequiresAuthAndPreservesOrder(t *testing.T) {
	req := require.New(t)
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/messages")
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	alice := registerUser(t, srv.URL, "alice")
	conn := dialWS(t, srv.URL, alice.Token)

	for _, text := range []string{"first", "second", "third"} {
		sendEvent(t, conn, protocol.EventChatMessage, protocol.ChatMessageRequest{Text: text})
		readEnvelope(t, conn)
	}

	history := fetchHistory(t, srv.URL, alice.Token)
	req.Len(history, 3)
	req.Equal("first", history[0].Text)
	req.Equal("second", history[1].Text)
	req.Equal("third", history[2].Text)
}

func fetchHistory(t *testing.T, baseURL, token string) []protocol.ChatMessage {
	t.Helper()
	req := require.New(t)

	httpReq, err := http.NewRequest(http.MethodGet, baseURL+"/api/messages", nil)
	req.NoError(err)
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(httpReq)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var history []protocol.ChatMessage
	req.NoError(json.NewDecoder(resp.Body).Decode(&history))
	return history
}
