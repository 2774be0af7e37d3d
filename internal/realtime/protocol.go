package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound event types accepted on the gateway.
const (
	EventUserMessage      = "user_message"
	EventAdminMessage     = "admin_message"
	EventGetThread        = "get_thread"
	EventGetRecentThreads = "get_recent_threads"
	EventTyping           = "typing"
	EventPing             = "ping"
)

// Outbound event types pushed by the server.
const (
	EventReady       = "ready"
	EventPong        = "pong"
	EventAck         = "ack"
	EventChatMessage = "chat:message"
	EventChatTyping  = "chat:typing"
	EventNoticeNew   = "notice:new"
)

// ErrMalformedFrame is returned for frames that are not a JSON envelope with a type.
var ErrMalformedFrame = errors.New("realtime: malformed frame")

// Inbound is the envelope of every client frame.
type Inbound struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Outbound is the envelope of every server frame.
type Outbound struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Ack answers a correlated request.
type Ack struct {
	OK     bool        `json:"ok"`
	Error  string      `json:"error,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

// Ready is sent once a connection has been registered.
type Ready struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
}

// ParseInbound decodes a client frame.
func ParseInbound(raw []byte) (Inbound, error) {
	var frame Inbound
	decoder := json.NewDecoder(bytes.NewReader(raw))
	if err := decoder.Decode(&frame); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	frame.Type = strings.TrimSpace(frame.Type)
	if frame.Type == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	frame.RequestID = strings.TrimSpace(frame.RequestID)

	if len(bytes.TrimSpace(frame.Payload)) == 0 || bytes.Equal(bytes.TrimSpace(frame.Payload), []byte("null")) {
		frame.Payload = nil
	}

	return frame, nil
}

// Encode serialises an outbound frame.
func Encode(frame Outbound) ([]byte, error) {
	return json.Marshal(frame)
}

// NewAck builds a successful acknowledgement.
func NewAck(requestID string, result interface{}) Outbound {
	return Outbound{Type: EventAck, RequestID: requestID, Data: Ack{OK: true, Result: result}}
}

// NewErrorAck builds a failed acknowledgement.
func NewErrorAck(requestID string, message string) Outbound {
	return Outbound{Type: EventAck, RequestID: requestID, Data: Ack{OK: false, Error: message}}
}
