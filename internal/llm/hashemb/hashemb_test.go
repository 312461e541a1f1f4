package hashemb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministic(t *testing.T) {
	e := New(64)
	a, err := e.Embeddings(context.Background(), "", []string{"Go is great for AI."})
	require.NoError(t, err)
	b, err := e.Embeddings(context.Background(), "", []string{"go IS great, for ai"})
	require.NoError(t, err)
	require.Len(t, a[0], 64)
	assert.Equal(t, a[0], b[0])
}

func TestDifferentTextsDiffer(t *testing.T) {
	e := New(0)
	vecs, err := e.Embeddings(context.Background(), "", []string{"short", "a much longer string", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, vecs[0], 256)
	assert.NotEqual(t, vecs[0], vecs[1])
	for _, x := range vecs[2] {
		assert.Zero(t, x)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(8).Embeddings(ctx, "", []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}
