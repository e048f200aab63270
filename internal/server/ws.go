package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"driftchat/internal/auth"
)

// handleWebSocket upgrades the connection and runs the handshake. The bearer
// credential travels as a `token` query parameter, out of band of the event
// stream. Connections that fail authentication are closed with a reason and
// never reach the registry, so no event traffic is processed for them.
func (a *App) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	identity, err := auth.VerifyToken(a.cfg.JWT, r.URL.Query().Get("token"))
	if err != nil {
		a.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket handshake rejected")
		a.rejectConnection(conn, err)
		return
	}

	client := newClient(conn, identity, r.RemoteAddr, a.cfg.MaxMessageBytes, a.log)
	a.registry.Register(client)

	// The pump outlives the handler, and a disconnect must not cancel an
	// in-flight store call, so it does not inherit the request context.
	go client.writePump()
	go client.readPump(context.Background(), a.hub)
}

func (a *App) rejectConnection(conn *websocket.Conn, cause error) {
	reason := "authentication error: " + cause.Error()
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = conn.Close()
}
