package protocol

import (
	"encoding/json"
	"fmt"
)

// NewMessage creates a Message with the given type and payload.
// The payload is marshaled to JSON; a nil payload produces an empty payload.
func NewMessage(msgType MessageType, payload any, requestID string) (*Message, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		raw = data
	}
	return &Message{
		Type:      msgType,
		Payload:   raw,
		RequestID: requestID,
	}, nil
}

// ParseMessage parses raw bytes into a Message
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &msg, nil
}

// ParsePayload unmarshals the payload of a message into the given type
func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	if len(msg.Payload) == 0 {
		return nil, fmt.Errorf("message %s has no payload", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", msg.Type, err)
	}
	return &payload, nil
}
