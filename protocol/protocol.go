package protocol

import (
	"encoding/json"
)

// MessageType defines the type of message exchanged with the backend
type MessageType string

const (
	// Client -> Backend message types
	MessageTypeRequestServerInfo MessageType = "request_server_info"
	MessageTypeStartScanning     MessageType = "start_scanning"
	MessageTypeStopScanning      MessageType = "stop_scanning"
	MessageTypeConnectDevice     MessageType = "connect_device"
	MessageTypeScalarCmd         MessageType = "scalar_cmd"
	MessageTypeStopDeviceCmd     MessageType = "stop_device_cmd"
	MessageTypeDisconnectDevice  MessageType = "disconnect_device"

	// Backend -> Client message types
	MessageTypeServerInfo       MessageType = "server_info"
	MessageTypeOk               MessageType = "ok"
	MessageTypeDeviceAdded      MessageType = "device_added"
	MessageTypeDeviceConnected  MessageType = "device_connected"
	MessageTypeDeviceRemoved    MessageType = "device_removed"
	MessageTypeScanningFinished MessageType = "scanning_finished"
	MessageTypeError            MessageType = "error"
)

// ErrorCode defines error codes for error messages
type ErrorCode string

const (
	ErrorCodeInvalidRequestFormat ErrorCode = "INVALID_REQUEST_FORMAT"
	ErrorCodeUnknownDevice        ErrorCode = "UNKNOWN_DEVICE"
	ErrorCodeDeviceUnreachable    ErrorCode = "DEVICE_UNREACHABLE"
	ErrorCodeConnectTimeout       ErrorCode = "CONNECT_TIMEOUT"
	ErrorCodeInternalServerError  ErrorCode = "INTERNAL_SERVER_ERROR"
)

// Message is the base structure for all backend messages
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// ActuatorDescriptor describes a single actuator of a device: its kind
// and the accepted parameter range.
type ActuatorDescriptor struct {
	Kind string  `json:"kind"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// ServerInfoPayload is the payload for the server_info message
type ServerInfoPayload struct {
	ServerName     string `json:"serverName"`
	MessageVersion int    `json:"messageVersion"`
}

// DeviceAddedPayload is the payload for the device_added message
type DeviceAddedPayload struct {
	Name string `json:"name"`
}

// ConnectDevicePayload is the payload for the connect_device message
type ConnectDevicePayload struct {
	Name string `json:"name"`
}

// DeviceConnectedPayload is the payload for the device_connected message.
// Actuators is the full capability set reported by the device variant.
type DeviceConnectedPayload struct {
	Name      string               `json:"name"`
	Actuators []ActuatorDescriptor `json:"actuators"`
}

// DeviceRemovedPayload is the payload for the device_removed message
type DeviceRemovedPayload struct {
	Name string `json:"name"`
}

// ScalarCmdPayload is the payload for the scalar_cmd message
type ScalarCmdPayload struct {
	Name  string  `json:"name"`
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
}

// StopDeviceCmdPayload is the payload for the stop_device_cmd message
type StopDeviceCmdPayload struct {
	Name string `json:"name"`
}

// DisconnectDevicePayload is the payload for the disconnect_device message
type DisconnectDevicePayload struct {
	Name string `json:"name"`
}

// ErrorPayload is the payload for the error message
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Device  string    `json:"device,omitempty"`
}
