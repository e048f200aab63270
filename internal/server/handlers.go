package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"driftchat/internal/auth"
	"driftchat/internal/protocol"
	"driftchat/internal/storage"
)

var (
	errUserExists         = errors.New("user already exists")
	errInvalidCredentials = errors.New("invalid credentials")
)

type credentialsRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expiresAt"`
	User      userResponse `json:"user"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// handleRegister creates an account and issues a token, so a fresh client can
// connect without a second round trip.
func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := a.createUser(r, req)
	if err != nil {
		a.log.Warn().Err(err).Str("user", req.Username).Msg("register failed")
		a.reportAuthError(w, err)
		return
	}

	a.log.Info().Str("user", user.Username).Str("id", user.ID).Msg("register success")
	a.issueToken(w, http.StatusCreated, user)
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := a.authenticateUser(r, req)
	if err != nil {
		a.log.Warn().Err(err).Str("user", req.Username).Msg("login failed")
		a.reportAuthError(w, err)
		return
	}

	a.log.Info().Str("user", user.Username).Str("id", user.ID).Msg("login success")
	a.issueToken(w, http.StatusOK, user)
}

// handleHistory returns stored messages in creation order. It shares the
// token verifier with the websocket handshake.
func (a *App) handleHistory(w http.ResponseWriter, r *http.Request) {
	if _, err := a.identityFromRequest(r); err != nil {
		jsonError(w, http.StatusUnauthorized, err.Error())
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	messages, err := a.store.ListMessages(r.Context(), limit)
	if err != nil {
		a.log.Error().Err(err).Msg("history fetch failed")
		jsonError(w, http.StatusInternalServerError, "history unavailable")
		return
	}

	payload := lo.Map(messages, func(msg storage.Message, _ int) protocol.ChatMessage {
		return protocol.ChatMessage{
			ID:        msg.ID,
			UserID:    msg.AuthorID,
			Username:  msg.AuthorName,
			Text:      msg.Text,
			Timestamp: msg.CreatedAt,
		}
	})
	writeJSON(w, http.StatusOK, payload)
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := a.validate.Struct(req); err != nil {
		jsonError(w, http.StatusBadRequest, "username and password do not meet requirements")
		return req, false
	}
	return req, true
}

func (a *App) createUser(r *http.Request, req credentialsRequest) (*storage.User, error) {
	ctx := r.Context()
	if _, err := a.store.GetUserByUsername(ctx, req.Username); err == nil {
		return nil, errUserExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &storage.User{
		ID:        uuid.NewString(),
		Username:  req.Username,
		Password:  hashed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (a *App) authenticateUser(r *http.Request, req credentialsRequest) (*storage.User, error) {
	user, err := a.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if err := auth.ComparePassword(user.Password, req.Password); err != nil {
		return nil, errInvalidCredentials
	}
	return user, nil
}

func (a *App) issueToken(w http.ResponseWriter, status int, user *storage.User) {
	token, err := auth.NewToken(a.cfg.JWT, user.ID, user.Username)
	if err != nil {
		a.log.Error().Err(err).Msg("token issue failed")
		jsonError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, status, authResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(a.cfg.JWT.Expiration).Unix(),
		User:      userResponse{ID: user.ID, Username: user.Username},
	})
}

// reportAuthError maps auth failures onto responses. Unknown-user and
// wrong-password share one reason so the endpoint does not leak which
// usernames exist.
func (a *App) reportAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errUserExists):
		jsonError(w, http.StatusConflict, "username already exists")
	case errors.Is(err, errInvalidCredentials):
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		jsonError(w, http.StatusInternalServerError, "authentication failed")
	}
}

func (a *App) identityFromRequest(r *http.Request) (auth.Identity, error) {
	header := r.Header.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return auth.VerifyToken(a.cfg.JWT, token)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
