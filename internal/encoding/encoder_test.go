package encoding

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderPoolMarshal(t *testing.T) {
	pool := NewEncoderPool()

	data, err := pool.Marshal(map[string]any{"lead_score": 87.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lead_score":87.5}`, string(data))
	assert.NotContains(t, string(data), "\n")
}

func TestEncoderPoolSanitizesNonFinite(t *testing.T) {
	pool := NewEncoderPool()

	data, err := pool.Marshal(map[string]any{
		"avg_deal_size": math.NaN(),
		"win_rate":      math.Inf(1),
		"open_deals":    int(4),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"avg_deal_size":null,"win_rate":null,"open_deals":4}`, string(data))
}

func TestEncoderPoolReuse(t *testing.T) {
	pool := NewEncoderPool()

	// Earlier, larger payloads must not bleed into later marshals when
	// buffers come back out of the pool.
	big, err := pool.Marshal(map[string]any{"stages": []string{
		"Prospecting", "Qualification", "Needs Analysis", "Proposal",
	}})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		small, err := pool.Marshal(map[string]any{"i": i})
		require.NoError(t, err)
		assert.Less(t, len(small), len(big))
		assert.JSONEq(t, fmt.Sprintf(`{"i":%d}`, i), string(small))
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	type row struct {
		Company string  `json:"company"`
		Score   float64 `json:"lead_score"`
	}

	data, err := MarshalJSON(row{Company: "Acme Corp", Score: 91.2})
	require.NoError(t, err)

	var decoded row
	require.NoError(t, UnmarshalJSON(data, &decoded))
	assert.Equal(t, "Acme Corp", decoded.Company)
	assert.Equal(t, 91.2, decoded.Score)
}
