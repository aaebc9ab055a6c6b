package protocol

import (
	"bytes"
	"encoding/json"
)

// Envelope is the wire frame every inbound message arrives in. AckID, when
// present, asks the router to reply with a matching Ack envelope — the
// Go-native rendering of the spec's request/ack pairing over a socket
// connection that has no native callback framing.
type Envelope struct {
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	AckID   string          `json:"ackId,omitempty"`
}

// Message is the wire frame the broker sends out, mirroring Envelope but
// with an already-typed payload ready for marshaling.
type Message struct {
	Event   Event `json:"event"`
	Payload any   `json:"payload,omitempty"`
}

// Ack is the reply to an Envelope carrying a non-empty AckID.
type Ack struct {
	AckID   string    `json:"ackId"`
	Ok      bool      `json:"ok"`
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
}

// DecodePayload unmarshals an Envelope's raw payload into T and runs its
// Validate method. It is the single entry point every handler uses to go
// from the wire to a typed, validated payload struct. Decoding rejects any
// field T does not declare a tag for — §4.1 permits extra fields only
// inside the opaque input/signal payloads, which are typed json.RawMessage
// and so never pass through this strict decode themselves.
func DecodePayload[T interface{ Validate() error }](raw json.RawMessage) (T, error) {
	var payload T
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&payload); err != nil {
			return payload, NewWireError(ErrInvalidPayload, "malformed payload")
		}
	}
	if err := payload.Validate(); err != nil {
		return payload, NewWireError(ErrInvalidPayload, err.Error())
	}
	return payload, nil
}
