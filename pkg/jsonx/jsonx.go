// Package jsonx wraps the JSON codec used across tiendasync so callers
// share one implementation and its configuration.
package jsonx

import (
	"io"

	gojson "github.com/goccy/go-json"
)

// Marshal serializes v to JSON.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal deserializes JSON into v. Field name matching is
// case-insensitive and unknown fields are ignored, which is what the
// remote API contract requires of us.
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// NewEncoder returns a streaming encoder writing to w.
func NewEncoder(w io.Writer) *gojson.Encoder {
	return gojson.NewEncoder(w)
}

// NewDecoder returns a streaming decoder reading from r.
func NewDecoder(r io.Reader) *gojson.Decoder {
	return gojson.NewDecoder(r)
}
