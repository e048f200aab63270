package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"driftchat/internal/config"
	"driftchat/internal/protocol"
)

// AuthResult mirrors the server's auth response.
type AuthResult struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
	User      struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

// Session manages the REST calls and the live socket against the server.
type Session struct {
	cfg        config.ClientConfig
	httpClient *http.Client

	mu        sync.Mutex
	conn      *websocket.Conn
	envelopes chan protocol.Envelope
}

// NewSession initializes a session with configuration.
func NewSession(cfg config.ClientConfig) *Session {
	return &Session{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Register creates an account and returns a ready-to-use token.
func (s *Session) Register(ctx context.Context, username, password string) (AuthResult, error) {
	return s.postCredentials(ctx, "/api/register", username, password)
}

// Login exchanges credentials for a token.
func (s *Session) Login(ctx context.Context, username, password string) (AuthResult, error) {
	return s.postCredentials(ctx, "/api/login", username, password)
}

// History fetches the stored backlog in creation order.
func (s *Session) History(ctx context.Context, token string) ([]protocol.ChatMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.ServerURL+"/api/messages", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history fetch: %s", serverError(resp.Body))
	}

	var history []protocol.ChatMessage
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, err
	}
	return history, nil
}

// Connect dials the websocket endpoint with the bearer token and starts the
// read loop.
func (s *Session) Connect(ctx context.Context, token string) error {
	wsURL := websocketURL(s.cfg.ServerURL) + "/ws?token=" + token

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.envelopes = make(chan protocol.Envelope, 32)
	s.mu.Unlock()

	go s.readLoop(conn)
	return nil
}

// Envelopes exposes inbound events. The channel is closed when the socket
// drops.
func (s *Session) Envelopes() <-chan protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.envelopes
}

// Send dispatches one event to the server.
func (s *Session) Send(event string, payload interface{}) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	frame, err := protocol.Marshal(event, payload)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Close terminates the socket if open.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (s *Session) readLoop(conn *websocket.Conn) {
	s.mu.Lock()
	envelopes := s.envelopes
	s.mu.Unlock()
	defer close(envelopes)

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Unmarshal(frame)
		if err != nil {
			continue
		}
		envelopes <- env
	}
}

func (s *Session) postCredentials(ctx context.Context, path, username, password string) (AuthResult, error) {
	var result AuthResult

	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return result, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.ServerURL+path, bytes.NewReader(body))
	if err != nil {
		return result, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return result, fmt.Errorf("%s", serverError(resp.Body))
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, err
	}
	return result, nil
}

func serverError(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return "request failed"
}

func websocketURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://")
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://")
	default:
		return "ws://" + serverURL
	}
}
