package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	// ErrUnknownEvent is returned for inbound types the gateway does not handle.
	ErrUnknownEvent = errors.New("realtime: unknown event type")
	// ErrInvalidPayload is returned when a payload does not match its event schema.
	ErrInvalidPayload = errors.New("realtime: payload does not match schema")
)

var payloadSchemas = map[string]string{
	EventUserMessage: `{
		"type": "object",
		"required": ["text"],
		"properties": {
			"text": {"type": "string", "minLength": 1, "maxLength": 2000}
		}
	}`,
	EventAdminMessage: `{
		"type": "object",
		"required": ["target_user_id", "text"],
		"properties": {
			"target_user_id": {"type": "string", "minLength": 1, "maxLength": 64},
			"text": {"type": "string", "minLength": 1, "maxLength": 2000}
		}
	}`,
	EventGetThread: `{
		"type": "object",
		"properties": {
			"target_user_id": {"type": "string", "maxLength": 64},
			"before": {"type": "string"},
			"limit": {"type": "integer", "minimum": 1, "maximum": 100}
		}
	}`,
	EventGetRecentThreads: `{"type": "object"}`,
	EventTyping: `{
		"type": "object",
		"required": ["is_typing"],
		"properties": {
			"target_user_id": {"type": "string", "maxLength": 64},
			"is_typing": {"type": "boolean"}
		}
	}`,
	EventPing: `{}`,
}

// PayloadValidator checks inbound payload shapes against per-event JSON schemas.
type PayloadValidator struct {
	schemas map[string]*jsonschema.Schema
}

// NewPayloadValidator compiles the schemas of every inbound event.
func NewPayloadValidator() (*PayloadValidator, error) {
	compiled := make(map[string]*jsonschema.Schema, len(payloadSchemas))
	for event, source := range payloadSchemas {
		schema, err := jsonschema.CompileString("realtime/"+event+".json", source)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", event, err)
		}
		compiled[event] = schema
	}
	return &PayloadValidator{schemas: compiled}, nil
}

// Validate checks the payload of an inbound event. A missing payload is validated as an empty object.
func (v *PayloadValidator) Validate(eventType string, payload json.RawMessage) error {
	schema, ok := v.schemas[eventType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}

	var document interface{} = map[string]interface{}{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &document); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
	}

	if err := schema.Validate(document); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
