package redisai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelStoreArgs(t *testing.T) {
	spec := ModelSpec{Backend: "ONNX", Device: "CPU", Inputs: []string{"float_input"}, Outputs: []string{"variable"}}
	blob := []byte{0x08, 0x01}

	got := modelStoreArgs("model_A", spec, blob)

	assert.Equal(t, []any{
		"AI.MODELSTORE", "model_A", "ONNX", "CPU",
		"INPUTS", 1, "float_input",
		"OUTPUTS", 1, "variable",
		"BLOB", blob,
	}, got)
}

func TestModelExecuteArgs(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    []any
	}{
		{
			name: "no timeout",
			want: []any{"AI.MODELEXECUTE", "model_A", "INPUTS", 1, "in:1", "OUTPUTS", 1, "out:1"},
		},
		{
			name:    "with timeout",
			timeout: 1500 * time.Millisecond,
			want:    []any{"AI.MODELEXECUTE", "model_A", "INPUTS", 1, "in:1", "OUTPUTS", 1, "out:1", "TIMEOUT", int64(1500)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := modelExecuteArgs("model_A", []string{"in:1"}, []string{"out:1"}, tt.timeout)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFloat32Blob(t *testing.T) {
	values := []float32{2018, 15000, 0.5, -1, 3}

	blob := encodeFloat32(values)
	require.Len(t, blob, 20)
	// 0.5 is 0x3f000000, stored little endian
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x3f}, blob[8:12])

	got, err := decodeFloat32(blob)
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestDecodeFloat32_BadLength(t *testing.T) {
	_, err := decodeFloat32([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrUnexpectedReply)
}
