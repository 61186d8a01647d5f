package encoding

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeNonFiniteFloats(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  any
	}{
		{"nan", math.NaN(), nil},
		{"positive inf", math.Inf(1), nil},
		{"negative inf", math.Inf(-1), nil},
		{"finite", 42.5, 42.5},
		{"nil", nil, nil},
		{"string", "hello", "hello"},
		{"int", 7, 7},
		{"bool", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestSanitizeNested(t *testing.T) {
	input := map[string]any{
		"score":   math.NaN(),
		"valid":   1.5,
		"nested":  map[string]any{"inf": math.Inf(1)},
		"slice":   []any{math.NaN(), 2.0, "keep"},
		"message": "ok",
	}

	out, ok := Sanitize(input).(map[string]any)
	require.True(t, ok)
	assert.Nil(t, out["score"])
	assert.Equal(t, 1.5, out["valid"])
	assert.Nil(t, out["nested"].(map[string]any)["inf"])
	assert.Equal(t, []any{nil, 2.0, "keep"}, out["slice"])
	assert.Equal(t, "ok", out["message"])
}

func TestSanitizeStruct(t *testing.T) {
	type report struct {
		Score    float64  `json:"score"`
		Average  float64  `json:"average"`
		Hidden   string   `json:"-"`
		Optional string   `json:"optional,omitempty"`
		Factors  []string `json:"factors"`
		private  float64
	}

	out, ok := Sanitize(report{
		Score:   math.NaN(),
		Average: 3.2,
		Hidden:  "secret",
		Factors: []string{"a"},
		private: math.NaN(),
	}).(map[string]any)
	require.True(t, ok)

	assert.Nil(t, out["score"])
	assert.Equal(t, 3.2, out["average"])
	assert.NotContains(t, out, "-")
	assert.NotContains(t, out, "Hidden")
	assert.NotContains(t, out, "optional")
	assert.Equal(t, []any{"a"}, out["factors"])
}

func TestSanitizeTimePassesThrough(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	out := Sanitize(map[string]any{"when": now})

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2026-08-01T12:00:00Z")
}

func TestSanitizedPayloadAlwaysMarshals(t *testing.T) {
	payload := map[string]any{
		"velocity": map[string]any{"avg_days": math.Inf(1)},
		"scores":   []float64{1, math.NaN(), 3},
	}

	_, err := json.Marshal(payload)
	require.Error(t, err)

	data, err := json.Marshal(Sanitize(payload))
	require.NoError(t, err)
	assert.Contains(t, string(data), "null")
}

func TestMarshalJSONSanitizes(t *testing.T) {
	data, err := MarshalJSON(map[string]any{"score": math.NaN(), "ok": 1.0})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, UnmarshalJSON(data, &out))
	assert.Nil(t, out["score"])
	assert.Equal(t, 1.0, out["ok"])
}

func TestEncoderPoolConcurrentMarshal(t *testing.T) {
	pool := NewEncoderPool()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				data, err := pool.Marshal(map[string]any{"n": float64(j)})
				assert.NoError(t, err)
				assert.NotEmpty(t, data)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
