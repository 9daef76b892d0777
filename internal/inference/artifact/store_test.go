package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaths(t *testing.T) {
	assert.Equal(t, "models/model_A.onnx", ModelPath("A", ".onnx"))
	assert.Equal(t, "models/model_B.gob", ModelPath("B", ".gob"))
	assert.Equal(t, "encoders/ordinal_encoder_A.json", EncoderPath("A"))
	assert.Equal(t, "model_C", ModelName("C"))
	assert.Equal(t, "ordinal_encoder_C", EncoderName("C"))
}

func TestLocalStore_Get(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "models"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "models", "model_A.json"), []byte(`{"kind":"linear"}`), 0o644))

	store := NewLocalStore(root)

	tests := []struct {
		name     string
		path     string
		want     string
		wantErr  error
		wantText string
	}{
		{name: "existing file", path: "models/model_A.json", want: `{"kind":"linear"}`},
		{name: "missing file", path: "models/model_Z.json", wantErr: ErrNotFound},
		{name: "traversal", path: "../secret", wantText: "invalid artifact path"},
		{name: "empty", path: "", wantText: "invalid artifact path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Get(context.Background(), tt.path)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantText)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, string(got))
			}
		})
	}
}

func TestLocalStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocalStore(t.TempDir()).Get(ctx, "models/model_A.json")
	assert.ErrorIs(t, err, context.Canceled)
}
