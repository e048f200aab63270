// Package server hosts the websocket chat core: connection registry, event
// hub, per-connection pumps, and the REST surface around them.
package server

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry tracks the set of currently live connections. It is the only
// structure mutated concurrently by many connection lifecycles, so every
// operation runs under its lock; broadcasts iterate a snapshot so a client
// disconnecting mid-broadcast either receives the frame or does not.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	log     zerolog.Logger
}

// NewRegistry initializes an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		clients: make(map[*Client]struct{}),
		log:     log.With().Str("component", "registry").Logger(),
	}
}

// Register adds a live connection. Registering the same connection twice is a
// no-op.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c]; ok {
		return
	}
	r.clients[c] = struct{}{}
	r.log.Debug().Str("user", c.identity.Username).Str("remote", c.addr).Int("total", len(r.clients)).Msg("client registered")
}

// Unregister removes a connection and closes its send channel. Safe to call
// multiple times; absent connections are ignored.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	if _, ok := r.clients[c]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.clients, c)
	c.closed = true
	total := len(r.clients)
	r.mu.Unlock()

	// Close outside the lock so the write pump can drain without contention.
	close(c.send)
	r.log.Debug().Str("user", c.identity.Username).Str("remote", c.addr).Int("total", total).Msg("client unregistered")
}

// BroadcastAll delivers one frame to every registered connection, including
// the originator if present.
func (r *Registry) BroadcastAll(frame []byte) {
	r.broadcast(nil, frame)
}

// BroadcastExcept delivers one frame to every registered connection except
// the originating one.
func (r *Registry) BroadcastExcept(origin *Client, frame []byte) {
	r.broadcast(origin, frame)
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Registry) broadcast(origin *Client, frame []byte) {
	snapshot := r.snapshot()

	var stalled []*Client
	for _, c := range snapshot {
		if origin != nil && c == origin {
			continue
		}
		if !r.trySend(c, frame) {
			stalled = append(stalled, c)
		}
	}

	// A full send buffer means the consumer stopped draining; evict rather
	// than let one slow connection hold frames for everyone else.
	for _, c := range stalled {
		r.log.Warn().Str("user", c.identity.Username).Str("remote", c.addr).Msg("send buffer full, evicting client")
		r.Unregister(c)
	}
}

func (r *Registry) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		snapshot = append(snapshot, c)
	}
	return snapshot
}

// trySend enqueues a frame without blocking. The membership check and the
// send happen under the read lock so a concurrent Unregister cannot close
// the channel mid-send.
func (r *Registry) trySend(c *Client, frame []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.clients[c]; !ok || c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
