package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestEmbedIsDeterministicAndNormalized(t *testing.T) {
	e := NewEmbedder(256)
	vecs, err := e.Embed(context.Background(), []string{"Neural networks learn representations.", "Neural networks learn representations."})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 256)
	assert.Equal(t, vecs[0], vecs[1])

	var norm float64
	for _, x := range vecs[0] {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestRelatedTextScoresHigher(t *testing.T) {
	e := NewEmbedder(512)
	vecs, err := e.Embed(context.Background(), []string{
		"What is machine learning?",
		"Machine learning is a field of study where computers learn from data.",
		"The recipe calls for two cups of flour and a pinch of salt.",
	})
	require.NoError(t, err)
	assert.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
}

func TestEmptyTextYieldsZeroVector(t *testing.T) {
	e := NewEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"the and of"})
	require.NoError(t, err)
	for _, x := range vecs[0] {
		assert.Zero(t, x)
	}
}

func TestEmbedHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder(64).Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}
