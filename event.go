package directive

import (
	"encoding/json"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// EventHeader is the header of an event sent upstream.
type EventHeader struct {
	Namespace       string `json:"namespace"`
	Name            string `json:"name"`
	MessageID       string `json:"messageId"`
	DialogRequestID string `json:"dialogRequestId,omitempty"`
}

type eventBody struct {
	Header  EventHeader     `json:"header"`
	Payload json.RawMessage `json:"payload"`
}

type eventEnvelope struct {
	Context json.RawMessage `json:"context,omitempty"`
	Event   eventBody       `json:"event"`
}

// BuildEvent renders an event envelope and returns the generated message id
// with the JSON body. payload and context must be valid JSON or empty; an
// empty payload becomes {}.
func BuildEvent(namespace, name, dialogRequestID string, payload, context []byte) (string, []byte, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if !json.Valid(payload) {
		return "", nil, errors.New("event payload is not valid JSON", errors.CategoryValidation).
			WithTextCode("INVALID_EVENT_PAYLOAD").
			WithMetadata(map[string]any{"namespace": namespace, "name": name})
	}
	if len(context) > 0 && !json.Valid(context) {
		return "", nil, errors.New("event context is not valid JSON", errors.CategoryValidation).
			WithTextCode("INVALID_EVENT_CONTEXT").
			WithMetadata(map[string]any{"namespace": namespace, "name": name})
	}

	messageID := uuid.NewString()
	env := eventEnvelope{
		Context: context,
		Event: eventBody{
			Header: EventHeader{
				Namespace:       namespace,
				Name:            name,
				MessageID:       messageID,
				DialogRequestID: dialogRequestID,
			},
			Payload: payload,
		},
	}

	body, err := json.Marshal(env)
	if err != nil {
		return "", nil, errors.Wrap(err, errors.CategoryValidation, "failed to encode event").
			WithTextCode("EVENT_ENCODE_FAILED")
	}
	return messageID, body, nil
}
