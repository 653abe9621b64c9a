package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Keyed is one entry of an Ordered map.
type Keyed[T any] struct {
	Key   string `json:"key"`
	Value T      `json:"value"`
}

// Ordered is a JSON object decoded into a slice so that the key order of the
// source document survives. The backend encodes partitions and rules as
// objects keyed by index and the order of those keys drives the vertical
// layout of the graph, so a Go map cannot be used.
type Ordered[T any] []Keyed[T]

// UnmarshalJSON walks the object in document order.
func (o *Ordered[T]) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid JSON object")
	}
	parsed := gjson.ParseBytes(data)
	if parsed.Type == gjson.Null {
		*o = nil
		return nil
	}
	if !parsed.IsObject() {
		return fmt.Errorf("expected JSON object, got %s", parsed.Type)
	}

	out := make(Ordered[T], 0)
	var decodeErr error
	parsed.ForEach(func(key, value gjson.Result) bool {
		var v T
		if err := json.Unmarshal([]byte(value.Raw), &v); err != nil {
			decodeErr = fmt.Errorf("decoding key %q: %w", key.String(), err)
			return false
		}
		out = append(out, Keyed[T]{Key: key.String(), Value: v})
		return true
	})
	if decodeErr != nil {
		return decodeErr
	}
	*o = out
	return nil
}

// MarshalJSON writes the entries back as an object, in slice order.
func (o Ordered[T]) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding key %q: %w", entry.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value stored under key.
func (o Ordered[T]) Get(key string) (T, bool) {
	for _, entry := range o {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	var zero T
	return zero, false
}

// Keys returns the keys in order.
func (o Ordered[T]) Keys() []string {
	keys := make([]string, len(o))
	for i, entry := range o {
		keys[i] = entry.Key
	}
	return keys
}
