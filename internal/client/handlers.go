package client

import (
	"encoding/json"

	tea "github.com/charmbracelet/bubbletea"

	"driftchat/internal/protocol"
)

// handleEnvelope applies one inbound server event to the model and re-arms
// the envelope wait.
func (a *App) handleEnvelope(msg envelopeMsg) (tea.Model, tea.Cmd) {
	if !msg.ok {
		a.setLog("disconnected from server", true)
		return a, nil
	}

	switch msg.env.Event {
	case protocol.EventChatMessage:
		var m protocol.ChatMessage
		if err := json.Unmarshal(msg.env.Data, &m); err == nil {
			a.messages = append(a.messages, m)
			delete(a.typing, m.Username)
			a.refreshViewport()
		}
	case protocol.EventMessageDeleted:
		var deleted protocol.MessageDeleted
		if err := json.Unmarshal(msg.env.Data, &deleted); err == nil {
			a.removeMessage(deleted.MessageID)
			a.refreshViewport()
		}
	case protocol.EventUserIsTyping:
		var typing protocol.Typing
		if err := json.Unmarshal(msg.env.Data, &typing); err == nil && typing.Username != "" {
			a.typing[typing.Username] = struct{}{}
		}
	case protocol.EventUserStoppedTyping:
		// The stop signal carries no username; clear the indicator line.
		a.typing = make(map[string]struct{})
	case protocol.EventError:
		var errEvent protocol.ErrorEvent
		if err := json.Unmarshal(msg.env.Data, &errEvent); err == nil {
			a.setLog("server: "+errEvent.Message, true)
		}
	}

	return a, a.waitForEnvelope()
}

func (a *App) removeMessage(id string) {
	for i, m := range a.messages {
		if m.ID == id {
			a.messages = append(a.messages[:i], a.messages[i+1:]...)
			return
		}
	}
}
