package server

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"driftchat/internal/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBufferSize = 64
)

// Client is one live websocket connection with the identity attached at
// handshake time. The identity is immutable for the connection's lifetime and
// discarded when the connection closes.
type Client struct {
	identity auth.Identity
	conn     *websocket.Conn
	send     chan []byte
	addr     string

	// closed is guarded by the owning registry's lock.
	closed bool

	log zerolog.Logger
}

func newClient(conn *websocket.Conn, identity auth.Identity, addr string, maxMessageBytes int64, log zerolog.Logger) *Client {
	if conn != nil && maxMessageBytes > 0 {
		conn.SetReadLimit(maxMessageBytes)
	}
	return &Client{
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		addr:     addr,
		log:      log.With().Str("user", identity.Username).Str("remote", addr).Logger(),
	}
}

// readPump feeds inbound frames into the hub, one at a time, preserving the
// order the transport delivered them. It owns connection teardown: when the
// read side ends for any reason the client is unregistered and the hub
// synthesizes the typing-stopped relay.
func (c *Client) readPump(ctx context.Context, hub *Hub) {
	defer func() {
		hub.HandleDisconnect(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		hub.Dispatch(ctx, c, frame)
	}
}

// writePump drains the send channel onto the socket and keeps the connection
// alive with pings. It exits when the registry closes the send channel or a
// write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
