package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

var errEmptyFrame = errors.New("empty frame")

// Marshal encodes an event with its payload into a single wire frame.
func Marshal(event string, payload interface{}) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Unmarshal decodes a wire frame into an envelope. The payload stays raw so
// the dispatcher can decode it per event kind.
func Unmarshal(frame []byte) (Envelope, error) {
	var env Envelope
	if len(frame) == 0 {
		return env, errEmptyFrame
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, err
	}
	if strings.TrimSpace(env.Event) == "" {
		return env, errors.New("missing event name")
	}
	return env, nil
}

// Decode unpacks an envelope payload into the event's request type.
func Decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errEmptyFrame
	}
	return json.Unmarshal(data, v)
}
