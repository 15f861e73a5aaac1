package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// eventEnvelope is the broadcast wire format.
type eventEnvelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

const eventSchemaURL = "mem://shared-list/event.json"

const eventSchema = `{
  "type": "object",
  "required": ["event", "data"],
  "properties": {
    "event": {"enum": ["addUser", "removeUser", "moveUser"]},
    "data": {"type": "object"}
  },
  "oneOf": [
    {
      "properties": {
        "event": {"const": "addUser"},
        "data": {
          "required": ["deviceId", "id", "name"],
          "properties": {
            "deviceId": {"type": "string"},
            "id": {"type": "integer", "minimum": 0},
            "name": {"type": "string", "minLength": 1}
          }
        }
      }
    },
    {
      "properties": {
        "event": {"const": "removeUser"},
        "data": {
          "required": ["deviceId", "id", "index"],
          "properties": {
            "deviceId": {"type": "string"},
            "id": {"type": "integer", "minimum": 0},
            "index": {"type": "integer", "minimum": 0}
          }
        }
      }
    },
    {
      "properties": {
        "event": {"const": "moveUser"},
        "data": {
          "required": ["deviceId", "src", "dest", "src_id", "dest_id"],
          "properties": {
            "deviceId": {"type": "string"},
            "src": {"type": "integer", "minimum": 0},
            "dest": {"type": "integer", "minimum": 0},
            "src_id": {"type": "integer", "minimum": 0},
            "dest_id": {"type": "integer"}
          }
        }
      }
    }
  ]
}`

var (
	eventSchemaOnce     sync.Once
	eventSchemaCompiled *jsonschema.Schema
	eventSchemaErr      error
)

func compiledEventSchema() (*jsonschema.Schema, error) {
	eventSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(eventSchema))
		if err != nil {
			eventSchemaErr = fmt.Errorf("event schema: unmarshal: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource(eventSchemaURL, doc); err != nil {
			eventSchemaErr = fmt.Errorf("event schema: add resource: %w", err)
			return
		}
		eventSchemaCompiled, eventSchemaErr = c.Compile(eventSchemaURL)
	})

	return eventSchemaCompiled, eventSchemaErr
}

// EncodeEvent builds the wire payload for the event.
func EncodeEvent(e MutationEvent) ([]byte, error) {
	if e == nil {
		return nil, NewValidationError("%s: nil", "event")
	}

	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("event data marshal: %w", err)
	}

	return json.Marshal(eventEnvelope{Event: e.Type(), Data: data})
}

// DecodeEvent parses and validates a wire payload.
// Any malformed payload results in an ErrValidation error.
func DecodeEvent(raw []byte) (MutationEvent, error) {
	schema, err := compiledEventSchema()
	if err != nil {
		return nil, err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, NewValidationError("payload: %v", err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, NewValidationError("payload: %v", err)
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, NewValidationError("payload: %v", err)
	}

	var (
		event     MutationEvent
		decodeErr error
	)
	switch envelope.Event {
	case AddEventType:
		var e AddEvent
		decodeErr = json.Unmarshal(envelope.Data, &e)
		if decodeErr == nil {
			decodeErr = e.Validate()
		}
		event = e
	case RemoveEventType:
		var e RemoveEvent
		decodeErr = json.Unmarshal(envelope.Data, &e)
		if decodeErr == nil {
			decodeErr = e.Validate()
		}
		event = e
	case MoveEventType:
		var e MoveEvent
		decodeErr = json.Unmarshal(envelope.Data, &e)
		if decodeErr == nil {
			decodeErr = e.Validate()
		}
		event = e
	default:
		return nil, NewValidationError("unsupported event: %s", envelope.Event)
	}
	if decodeErr != nil {
		return nil, NewValidationError("%s: %v", envelope.Event, decodeErr)
	}

	return event, nil
}
