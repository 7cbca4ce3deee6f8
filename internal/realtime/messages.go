package realtime

import (
	"encoding/json"
	"errors"
)

var (
	// ErrConnectionClosed is returned when writing to a closed connection
	ErrConnectionClosed = errors.New("connection closed")

	// ErrMessageDropped is returned by Enqueue when a slow client's oldest
	// queued message was discarded to make room
	ErrMessageDropped = errors.New("send queue full, oldest message dropped")

	// ErrNoClients is returned by SetMarkers when no client received the markers
	ErrNoClients = errors.New("no connected clients")
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// client -> server
	MessageTypeEdit    MessageType = "edit"
	MessageTypeOptions MessageType = "options"
	MessageTypeView    MessageType = "view"

	// server -> client
	MessageTypeSnapshot MessageType = "snapshot"
	MessageTypeMarkers  MessageType = "markers"
	MessageTypeFragment MessageType = "fragment"
	MessageTypeError    MessageType = "error"
	MessageTypeAck      MessageType = "ack"

	// both directions
	MessageTypeHeartbeat MessageType = "heartbeat"
)

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage represents a message to the client
type ServerMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// EditPayload replaces the source document
type EditPayload struct {
	Source string `json:"source"`
}

// OptionsPayload replaces the compile options
type OptionsPayload struct {
	Minify        string `json:"minify"`
	EntryStrategy string `json:"entry_strategy"`
	Transpile     bool   `json:"transpile"`
}

// ViewPayload selects the displayed artifact collection
type ViewPayload struct {
	View string `json:"view"`
}

// FragmentPayload is sent whenever the session fragment changes. Clients
// mirror it into location.hash.
type FragmentPayload struct {
	Fragment string `json:"fragment"`
}
