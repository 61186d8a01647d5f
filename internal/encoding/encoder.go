// Package encoding provides pooled JSON encoding for hot response paths
// and sanitization of non-finite numbers before serialization.
package encoding

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
)

// EncoderPool reuses buffers across JSON marshals to cut allocation on
// the response hot path.
type EncoderPool struct {
	buffers sync.Pool
}

// NewEncoderPool creates an encoder pool.
func NewEncoderPool() *EncoderPool {
	return &EncoderPool{
		buffers: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
	}
}

// Marshal encodes v using a pooled buffer. Non-finite floats are
// sanitized to null first so payloads built from loose CRM data never
// fail to serialize.
func (ep *EncoderPool) Marshal(v interface{}) ([]byte, error) {
	buf := ep.buffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer ep.buffers.Put(buf)

	enc := json.NewEncoder(buf)
	if err := enc.Encode(Sanitize(v)); err != nil {
		return nil, err
	}

	// Encode appends a trailing newline; strip it and copy out of the
	// pooled buffer.
	data := buf.Bytes()
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Stats reports pool configuration for the stats endpoint.
func (ep *EncoderPool) Stats() map[string]interface{} {
	return map[string]interface{}{
		"kind": "pooled_json_encoder",
	}
}

var globalPool = NewEncoderPool()

// MarshalJSON marshals v using the global pooled encoder.
func MarshalJSON(v interface{}) ([]byte, error) {
	return globalPool.Marshal(v)
}

// UnmarshalJSON decodes data into v.
func UnmarshalJSON(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		slog.Debug("JSON unmarshal failed", "error", err)
		return err
	}
	return nil
}
