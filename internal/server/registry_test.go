package server

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"driftchat/internal/auth"
)

func newTestClient(id, name string) *Client {
	identity := auth.Identity{SubjectID: id, Username: name}
	return newClient(nil, identity, "test", 0, zerolog.Nop())
}

func drainFrames(c *Client) [][]byte {
	var frames [][]byte
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return frames
			}
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func TestRegistryRegisterIsIdempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(zerolog.Nop())
	client := newTestClient("u1", "alice")

	registry.Register(client)
	registry.Register(client)

	req.Equal(1, registry.Len())
}

func TestRegistryUnregisterAbsentIsNoOp(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(zerolog.Nop())
	client := newTestClient("u1", "alice")

	registry.Unregister(client)
	req.Equal(0, registry.Len())

	registry.Register(client)
	registry.Unregister(client)
	registry.Unregister(client)
	req.Equal(0, registry.Len())
}

func TestBroadcastAllIncludesOriginator(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(zerolog.Nop())
	alice := newTestClient("u1", "alice")
	bob := newTestClient("u2", "bob")
	registry.Register(alice)
	registry.Register(bob)

	registry.BroadcastAll([]byte("hello"))

	req.Len(drainFrames(alice), 1)
	req.Len(drainFrames(bob), 1)
}

func TestBroadcastExceptSkipsOriginator(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(zerolog.Nop())
	alice := newTestClient("u1", "alice")
	bob := newTestClient("u2", "bob")
	carol := newTestClient("u3", "carol")
	registry.Register(alice)
	registry.Register(bob)
	registry.Register(carol)

	registry.BroadcastExcept(alice, []byte("typing"))

	req.Empty(drainFrames(alice))
	req.Len(drainFrames(bob), 1)
	req.Len(drainFrames(carol), 1)
}

func TestBroadcastEvictsStalledClient(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(zerolog.Nop())
	stalled := newTestClient("u1", "alice")
	healthy := newTestClient("u2", "bob")
	registry.Register(stalled)
	registry.Register(healthy)

	for i := 0; i < sendBufferSize; i++ {
		registry.BroadcastAll([]byte("fill"))
	}
	drainFrames(healthy)

	// One more frame overflows the stalled client's buffer.
	registry.BroadcastAll([]byte("overflow"))

	req.Equal(1, registry.Len())
	req.Len(drainFrames(healthy), 1)
}
