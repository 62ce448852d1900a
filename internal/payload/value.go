package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind tags the wire type carried by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	// KindOther covers booleans, arrays and objects; they are kept verbatim.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	default:
		return "other"
	}
}

// Value is a single payload field as received on the wire.
type Value struct {
	kind Kind
	str  string
	num  json.Number
	raw  json.RawMessage
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// String wraps a text value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a numeric literal.
func Number(n json.Number) Value { return Value{kind: KindNumber, num: n} }

// Kind reports the wire type.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is JSON null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the text of a string value.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Num returns the literal of a numeric value.
func (v Value) Num() (json.Number, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return v.num, true
}

// Text renders the value as plain text, the way it would show up in a log line.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num.String()
	case KindOther:
		return string(v.raw)
	default:
		return ""
	}
}

// Equal compares two values by kind and wire content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindOther:
		return bytes.Equal(v.raw, o.raw)
	default:
		return true
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return marshalNoEscape(v.str)
	case KindNumber:
		return []byte(v.num), nil
	case KindOther:
		if len(v.raw) == 0 {
			return []byte("null"), nil
		}
		return v.raw, nil
	default:
		return nil, fmt.Errorf("payload: unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("payload: empty value")
	}

	switch c := data[0]; {
	case c == 'n':
		*v = Null()
	case c == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case c == '-' || (c >= '0' && c <= '9'):
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Number(n)
	default:
		if !json.Valid(data) {
			return fmt.Errorf("payload: invalid value %q", data)
		}
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		*v = Value{kind: KindOther, raw: raw}
	}
	return nil
}

// Payload maps alert field names to their wire values.
type Payload map[string]Value

// Get returns the named field or null when absent.
func (p Payload) Get(field string) Value {
	if v, ok := p[field]; ok {
		return v
	}
	return Null()
}

// Clone returns a shallow copy; Values are immutable so this is a full copy.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// StringPayload builds a payload whose fields are all strings.
func StringPayload(fields map[string]string) Payload {
	out := make(Payload, len(fields))
	for k, v := range fields {
		out[k] = String(v)
	}
	return out
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
