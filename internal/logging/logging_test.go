package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWriter(&buf, "INFO", "json")
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("collected", zap.Int("series", 3))
	Flush(l)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "collected", entry["msg"])
	assert.EqualValues(t, 3, entry["series"])
	assert.Contains(t, entry, "ts")
}

func TestNewWriterRejectsBadInput(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, "loud", "json")
	assert.Error(t, err)

	_, err = NewWriter(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}

func TestFromContext(t *testing.T) {
	fallback := zap.NewNop()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))

	l := zap.NewExample()
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx, fallback))

	assert.NotNil(t, FromContext(context.Background(), nil))
}
