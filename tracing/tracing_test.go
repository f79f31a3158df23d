package tracing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracingFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "spans.json")
	require.NoError(t, Init("revflow", "0.0.1", fname))

	ctx, span := StartSpan(context.Background(), "session.closeRound", KindInternal)
	span.WithAttributes(map[string]string{"session.id": "s1"})
	current, ok := SpanFromContext(ctx)
	assert.True(t, ok)
	assert.NotNil(t, current)
	_, child := StartSpan(ctx, "store.save", KindClient)
	EndSpan(child, errors.New("conflict"))
	EndSpan(span, nil)

	data, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.Contains(t, string(data), "session.closeRound")
}

func TestSpanFromContext_Empty(t *testing.T) {
	_, ok := SpanFromContext(context.Background())
	assert.False(t, ok)
}
