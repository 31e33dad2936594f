package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello = "hello"
	InboundTypePing  = "ping"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventReady        = "ready"
	EventPong         = "pong"
	EventNotification = "notification"
)

// Error codes specific to the websocket protocol.
const (
	ErrCodeUnsupportedVersion = "unsupported_version"
	ErrCodeHelloRequired      = "hello_required"
	ErrCodeInvalidMessage     = "invalid_message"
)

// HelloData authenticates the connection. It must be the first frame.
type HelloData struct {
	Token    string `json:"token"`
	Protocol int    `json:"protocol,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventReadyData confirms a successful hello.
type EventReadyData struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Protocol int    `json:"protocol"`
}

// EventNotificationData carries a freshly committed notification.
type EventNotificationData struct {
	ID        int64  `json:"id"`
	MessageID int64  `json:"message_id"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	From      string `json:"from,omitempty"`
	TS        int64  `json:"ts"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
