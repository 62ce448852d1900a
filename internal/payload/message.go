package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is returned when a body is not a JSON object.
var ErrNotObject = errors.New("payload: body is not a JSON object")

const (
	fieldToken   = "token"
	fieldSource  = "source"
	fieldPayload = "payload"
)

// IncomingMessage is one alert as received. Every top-level field of the body
// is kept verbatim so the message can be echoed back and stored as sent.
type IncomingMessage struct {
	fields  map[string]json.RawMessage
	payload Payload
}

// DecodeMessage parses an HTTP body. Anything other than a single JSON object
// is rejected.
func DecodeMessage(body []byte) (IncomingMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return IncomingMessage{}, ErrNotObject
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return IncomingMessage{}, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	return fromFields(fields), nil
}

// NewMessage assembles a message from its three well-known fields.
func NewMessage(token, source string, p Payload) IncomingMessage {
	fields := make(map[string]json.RawMessage, 3)
	fields[fieldToken] = mustRaw(token)
	fields[fieldSource] = mustRaw(source)
	fields[fieldPayload] = mustRaw(p)
	return IncomingMessage{fields: fields, payload: p.Clone()}
}

func fromFields(fields map[string]json.RawMessage) IncomingMessage {
	msg := IncomingMessage{fields: fields, payload: Payload{}}

	raw, ok := fields[fieldPayload]
	if !ok {
		return msg
	}
	// A payload that is not an object is kept in the raw echo but contributes
	// no fields.
	var p Payload
	if err := json.Unmarshal(raw, &p); err == nil && p != nil {
		msg.payload = p
	}
	return msg
}

// IsEmpty reports whether the message carries no fields at all.
func (m IncomingMessage) IsEmpty() bool { return len(m.fields) == 0 }

// Token returns the token when it was sent as a JSON string.
func (m IncomingMessage) Token() (string, bool) {
	return m.stringField(fieldToken)
}

// TokenText renders whatever was sent as the token, for audit logging.
func (m IncomingMessage) TokenText() string {
	if s, ok := m.Token(); ok {
		return s
	}
	if raw, ok := m.fields[fieldToken]; ok {
		return string(raw)
	}
	return ""
}

// Source returns the provenance label, or "" when absent or not a string.
func (m IncomingMessage) Source() string {
	s, _ := m.stringField(fieldSource)
	return s
}

// Payload returns a copy of the alert fields.
func (m IncomingMessage) Payload() Payload { return m.payload.Clone() }

// Field returns the raw JSON of a top-level field.
func (m IncomingMessage) Field(name string) (json.RawMessage, bool) {
	raw, ok := m.fields[name]
	return raw, ok
}

func (m IncomingMessage) stringField(name string) (string, bool) {
	raw, ok := m.fields[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// MarshalJSON writes back every top-level field as received.
func (m IncomingMessage) MarshalJSON() ([]byte, error) {
	if m.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.fields)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *IncomingMessage) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeMessage(data)
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}

func mustRaw(v any) json.RawMessage {
	b, err := marshalNoEscape(v)
	if err != nil {
		panic("payload: marshal well-known field: " + err.Error())
	}
	return b
}
