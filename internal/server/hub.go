package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"driftchat/internal/protocol"
	"driftchat/internal/storage"
)

type eventHandler func(ctx context.Context, c *Client, data json.RawMessage)

// Hub is the control core for inbound chat events. Each event kind maps to
// one handler through the dispatch table; handlers validate, authorize,
// persist where required, and instruct the registry to fan out. The hub keeps
// no cross-event state of its own.
type Hub struct {
	registry *Registry
	store    storage.Store
	log      zerolog.Logger
	handlers map[string]eventHandler
}

// NewHub wires the dispatch table over the given registry and store.
func NewHub(registry *Registry, store storage.Store, log zerolog.Logger) *Hub {
	h := &Hub{
		registry: registry,
		store:    store,
		log:      log.With().Str("component", "hub").Logger(),
	}
	h.handlers = map[string]eventHandler{
		protocol.EventChatMessage:   h.handlePublish,
		protocol.EventDeleteMessage: h.handleDelete,
		protocol.EventTypingStarted: h.handleTypingStarted,
		protocol.EventTypingStopped: h.handleTypingStopped,
	}
	return h
}

// Dispatch routes one raw inbound frame to its handler. Unknown or malformed
// frames are dropped; the connection stays open.
func (h *Hub) Dispatch(ctx context.Context, c *Client, frame []byte) {
	env, err := protocol.Unmarshal(frame)
	if err != nil {
		h.log.Debug().Err(err).Str("user", c.identity.Username).Msg("dropping malformed frame")
		return
	}
	handler, ok := h.handlers[env.Event]
	if !ok {
		h.log.Debug().Str("event", env.Event).Str("user", c.identity.Username).Msg("dropping unhandled event")
		return
	}
	handler(ctx, c, env.Data)
}

// HandleDisconnect removes the connection and relays a synthesized
// typing-stopped on its behalf so other participants clear any stale
// indicator. This is the one place teardown produces outbound traffic.
func (h *Hub) HandleDisconnect(c *Client) {
	h.registry.Unregister(c)
	h.relayTyping(c, protocol.EventUserStoppedTyping)
}

func (h *Hub) handlePublish(ctx context.Context, c *Client, data json.RawMessage) {
	var req protocol.ChatMessageRequest
	if err := protocol.Decode(data, &req); err != nil {
		h.sendError(c, "invalid message payload")
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		h.sendError(c, "message text required")
		return
	}

	msg, err := h.store.CreateMessage(ctx, c.identity.SubjectID, c.identity.Username, text)
	if err != nil {
		h.log.Error().Err(err).Str("user", c.identity.Username).Msg("message not stored")
		h.sendError(c, "message not stored")
		return
	}

	frame, err := protocol.Marshal(protocol.EventChatMessage, protocol.ChatMessage{
		ID:        msg.ID,
		UserID:    msg.AuthorID,
		Username:  msg.AuthorName,
		Text:      msg.Text,
		Timestamp: msg.CreatedAt,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("encode chat message")
		return
	}

	// The author receives its own echo: the broadcast carries the
	// authoritative store-assigned id and timestamp.
	h.registry.BroadcastAll(frame)
	h.log.Info().Str("id", msg.ID).Str("user", msg.AuthorName).Int("len", len(text)).Msg("message published")
}

// handleDelete deletes a message iff the requester is its author. Not-found,
// not-the-author, and store failure all yield zero outbound events, so a
// requester cannot probe for another user's message ids.
func (h *Hub) handleDelete(ctx context.Context, c *Client, data json.RawMessage) {
	var req protocol.DeleteMessageRequest
	if err := protocol.Decode(data, &req); err != nil {
		return
	}
	id := strings.TrimSpace(req.MessageID)
	if id == "" {
		return
	}

	msg, err := h.store.GetMessageByID(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.log.Error().Err(err).Str("id", id).Msg("message lookup failed")
		}
		return
	}
	if msg.AuthorID != c.identity.SubjectID {
		h.log.Debug().Str("id", id).Str("user", c.identity.Username).Msg("delete denied")
		return
	}

	if err := h.store.DeleteMessage(ctx, id); err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("message delete failed")
		return
	}

	frame, err := protocol.Marshal(protocol.EventMessageDeleted, protocol.MessageDeleted{MessageID: id})
	if err != nil {
		h.log.Error().Err(err).Msg("encode deletion notice")
		return
	}
	h.registry.BroadcastAll(frame)
	h.log.Info().Str("id", id).Str("user", c.identity.Username).Msg("message deleted")
}

func (h *Hub) handleTypingStarted(_ context.Context, c *Client, _ json.RawMessage) {
	h.relayTyping(c, protocol.EventUserIsTyping)
}

func (h *Hub) handleTypingStopped(_ context.Context, c *Client, _ json.RawMessage) {
	h.relayTyping(c, protocol.EventUserStoppedTyping)
}

// relayTyping is the presence signal relay: stateless pass-through to
// everyone except the originator, never persisted.
func (h *Hub) relayTyping(c *Client, event string) {
	var payload interface{}
	if event == protocol.EventUserIsTyping {
		payload = protocol.Typing{Username: c.identity.Username}
	}
	frame, err := protocol.Marshal(event, payload)
	if err != nil {
		h.log.Error().Err(err).Msg("encode typing signal")
		return
	}
	h.registry.BroadcastExcept(c, frame)
}

// sendError reports a failure to the originating connection only. No
// broadcast side effect occurs and nothing is retried.
func (h *Hub) sendError(c *Client, message string) {
	frame, err := protocol.Marshal(protocol.EventError, protocol.ErrorEvent{Message: message})
	if err != nil {
		h.log.Error().Err(err).Msg("encode error event")
		return
	}
	h.registry.trySend(c, frame)
}
