// Package jsonvalue holds the lazy JSON value returned for the json/jsonb
// OIDs in the decoder's OID table.
package jsonvalue

import "encoding/json"

// Value wraps the raw bytes PostgreSQL sent for a json/jsonb column without
// eagerly parsing them; validation is deferred to Unmarshal rather than
// done at construction time.
type Value struct {
	raw []byte
}

// New wraps raw JSON text as received from the wire. No validation is
// performed here; Unmarshal is the only method that parses the bytes.
func New(raw []byte) Value {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return Value{raw: cp}
}

// String returns the JSON text verbatim, e.g. `"foo"` for a JSON string
// value `'foo'`.
func (v Value) String() string { return string(v.raw) }

// Raw returns the underlying bytes without copying.
func (v Value) Raw() []byte { return v.raw }

// Unmarshal decodes the wrapped JSON into dst, the same as json.Unmarshal.
func (v Value) Unmarshal(dst any) error { return json.Unmarshal(v.raw, dst) }

// MarshalJSON implements json.Marshaler so a Value embeds verbatim into a
// larger document instead of being re-escaped as a string.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.raw == nil {
		return []byte("null"), nil
	}
	return v.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler, copying the raw bytes as-is.
func (v *Value) UnmarshalJSON(data []byte) error {
	v.raw = append(v.raw[:0], data...)
	return nil
}
