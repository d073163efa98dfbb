package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is a decoded JSON object exchanged with the channel server.
type Payload map[string]any

// DecodePayload parses a JSON object. Numbers keep their textual form so
// integer ids survive untouched.
func DecodePayload(data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("decode payload: not an object")
	}
	return p, nil
}

// Has reports whether key is present, even with a null value.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the string at key, or def when absent or not a string.
func (p Payload) String(key, def string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return def
}

// Bool returns the bool at key, or def when absent or not a bool.
func (p Payload) Bool(key string, def bool) bool {
	if b, ok := p[key].(bool); ok {
		return b
	}
	return def
}

// Int returns the integer at key, or def when absent or not numeric.
func (p Payload) Int(key string, def int64) int64 {
	switch v := p[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint32:
		return int64(v)
	}
	return def
}

// Float returns the number at key, or def when absent or not numeric.
func (p Payload) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint32:
		return float64(v)
	}
	return def
}

// Clone returns a shallow copy.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// JSON encodes the payload, falling back to "{}" on failure. It is meant
// for logs and error messages.
func (p Payload) JSON() string {
	data, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(data)
}
