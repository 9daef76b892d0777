package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/pricing-pipeline/internal/api/storage"
)

func TestRunCursor_RoundTrip(t *testing.T) {
	in := &storage.RunCursor{
		StartedAt: time.Date(2024, 5, 1, 12, 30, 0, 123456789, time.UTC),
		RunID:     "6f1c8a9e-3a57-4a43-9d0b-3c1f0d8a7e21",
	}

	out, err := DecodeRunCursor(EncodeRunCursor(in))

	require.NoError(t, err)
	assert.True(t, in.StartedAt.Equal(out.StartedAt))
	assert.Equal(t, in.RunID, out.RunID)
}

func TestDecodeRunCursor(t *testing.T) {
	tests := []struct {
		name    string
		cursor  string
		wantNil bool
		wantErr bool
	}{
		{name: "empty", cursor: "", wantNil: true},
		{name: "not base64", cursor: "%%%", wantErr: true},
		{name: "missing separator", cursor: base64.URLEncoding.EncodeToString([]byte("12345")), wantErr: true},
		{name: "missing run id", cursor: base64.URLEncoding.EncodeToString([]byte("12345|")), wantErr: true},
		{name: "bad timestamp", cursor: base64.URLEncoding.EncodeToString([]byte("yesterday|abc")), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRunCursor(tt.cursor)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNil, got == nil)
		})
	}
}
