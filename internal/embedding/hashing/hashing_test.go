package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	s := 0.0
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestEmbed_DeterministicAndOrdered(t *testing.T) {
	e := NewEmbedder(64)
	ctx := context.Background()

	texts := []string{"opening hours of the clinic", "parking is free", "opening hours of the clinic"}
	vecs, err := e.Embed(ctx, texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	for _, v := range vecs {
		assert.Len(t, v, 64)
	}
	assert.Equal(t, vecs[0], vecs[2])
	assert.NotEqual(t, vecs[0], vecs[1])

	one, err := e.EmbedOne(ctx, "parking is free")
	require.NoError(t, err)
	assert.Equal(t, vecs[1], one)
}

func TestEmbed_Normalized(t *testing.T) {
	e := NewEmbedder(128)
	v, err := e.EmbedOne(context.Background(), "Dental cleaning takes about forty minutes")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, math.Sqrt(dot(v, v)), 1e-5)
}

func TestEmbed_SimilarTextScoresHigher(t *testing.T) {
	e := NewEmbedder(DefaultDimension)
	ctx := context.Background()
	vecs, err := e.Embed(ctx, []string{
		"We accept insurance from most major providers",
		"Our clinic is closed on public holidays",
	})
	require.NoError(t, err)

	q, err := e.EmbedOne(ctx, "which insurance providers do you accept")
	require.NoError(t, err)
	assert.Greater(t, dot(q, vecs[0]), dot(q, vecs[1]))
}

func TestEmbed_NoTokensGivesZeroVector(t *testing.T) {
	e := NewEmbedder(16)
	v, err := e.EmbedOne(context.Background(), "the and of ...")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 16), v)
}

func TestEmbed_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder(8).Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEmbedder_DefaultDimension(t *testing.T) {
	assert.Equal(t, DefaultDimension, NewEmbedder(0).Dimension())
	assert.Equal(t, "hashing", NewEmbedder(0).Name())
}
