package gateway

import (
	"encoding/json"
	"errors"

	"chatrelay/pkg/tracker"
)

// EventAck answers an inbound frame that carried an id.
const EventAck = "ack"

// Envelope is one websocket frame in either direction.
type Envelope struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *AckError       `json:"error,omitempty"`
}

// AckError is the error half of an ack.
type AckError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// frame is the outbound shape; Data is encoded lazily.
type frame struct {
	Event string    `json:"event"`
	ID    string    `json:"id,omitempty"`
	Data  any       `json:"data,omitempty"`
	Error *AckError `json:"error,omitempty"`
}

func encode(event, id string, data any) ([]byte, error) {
	return json.Marshal(frame{Event: event, ID: id, Data: data})
}

func encodeError(id string, err error) []byte {
	b, _ := json.Marshal(frame{Event: EventAck, ID: id, Error: ackError(err)})
	return b
}

func ackError(err error) *AckError {
	if errors.Is(err, errRateLimited) {
		return &AckError{Kind: "rate_limited", Message: err.Error()}
	}
	return &AckError{Kind: tracker.Code(err), Message: tracker.PublicMessage(err)}
}
