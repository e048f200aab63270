package protocol

import (
	"encoding/json"
	"time"
)

// Event names carried in envelopes. Inbound names are what clients send after
// the handshake; outbound names are what the hub fans out.
const (
	// Inbound.
	EventChatMessage   = "chatMessage"
	EventDeleteMessage = "deleteMessage"
	EventTypingStarted = "typing-started"
	EventTypingStopped = "typing-stopped"

	// Outbound. EventChatMessage is reused for the broadcast echo.
	EventMessageDeleted    = "messageDeleted"
	EventUserIsTyping      = "user-is-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventError             = "error"
)

// Envelope wraps every payload sent over the socket, one envelope per frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChatMessageRequest asks the server to publish a message.
type ChatMessageRequest struct {
	Text string `json:"text"`
}

// DeleteMessageRequest asks the server to delete a previously stored message.
type DeleteMessageRequest struct {
	MessageID string `json:"messageId"`
}

// ChatMessage is the broadcast form of a stored message. ID and Timestamp are
// store-assigned; clients never supply them.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageDeleted notifies all participants that a message is gone.
type MessageDeleted struct {
	MessageID string `json:"messageId"`
}

// Typing is the ephemeral presence signal; never stored.
type Typing struct {
	Username string `json:"username,omitempty"`
}

// ErrorEvent reports a failure to the originating connection only.
type ErrorEvent struct {
	Message string `json:"message"`
}
