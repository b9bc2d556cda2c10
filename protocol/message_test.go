package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageAndParseMessage(t *testing.T) {
	msg, err := NewMessage(MessageTypeScalarCmd, ScalarCmdPayload{
		Name:  "vib1",
		Kind:  "vibrate",
		Value: 0.5,
	}, "req-1")
	require.NoError(t, err)

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	parsed, err := ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeScalarCmd, parsed.Type)
	assert.Equal(t, "req-1", parsed.RequestID)

	payload, err := ParsePayload[ScalarCmdPayload](parsed)
	require.NoError(t, err)
	assert.Equal(t, "vib1", payload.Name)
	assert.Equal(t, 0.5, payload.Value)
}

func TestNewMessage_NilPayload(t *testing.T) {
	msg, err := NewMessage(MessageTypeStartScanning, nil, "req-2")
	require.NoError(t, err)
	assert.Empty(t, msg.Payload)
}

func TestParseMessage_Malformed(t *testing.T) {
	_, err := ParseMessage([]byte("{not json"))
	assert.Error(t, err)

	_, err = ParseMessage([]byte(`{"payload":{}}`))
	assert.Error(t, err, "a message without a type is invalid")
}

func TestParsePayload_MissingPayload(t *testing.T) {
	msg := &Message{Type: MessageTypeDeviceAdded}
	_, err := ParsePayload[DeviceAddedPayload](msg)
	assert.Error(t, err)
}

func TestParsePayload_WrongShape(t *testing.T) {
	msg := &Message{Type: MessageTypeDeviceAdded, Payload: []byte(`[1,2,3]`)}
	_, err := ParsePayload[DeviceAddedPayload](msg)
	assert.Error(t, err)
}
