package event

import (
	"encoding/json"
	"fmt"
)

// Codec encodes events for the transport wire. Round-tripping through
// Encode/Decode must be lossless for all event fields.
type Codec interface {
	Encode(evt *Event) ([]byte, error)
	Decode(data []byte) (*Event, error)
}

// JSONCodec is the default wire codec. Enums serialize as their string
// values and UUIDs as canonical strings.
type JSONCodec struct{}

// Encode marshals the full event structure.
func (JSONCodec) Encode(evt *Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", evt.Metadata.EventID, err)
	}
	return data, nil
}

// Decode unmarshals an event from wire bytes.
func (JSONCodec) Decode(data []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &evt, nil
}
