package mock_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall/memory/embedder/mock"
)

func cosine(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

func TestEmbedder_Deterministic(t *testing.T) {
	e := mock.New()
	a, err := e.Embed(context.Background(), "我喜欢爬山")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "我喜欢爬山")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, mock.DefaultDimensions)
}

func TestEmbedder_LexicalSimilarity(t *testing.T) {
	e := mock.NewWithDimensions(256)
	ctx := context.Background()
	base, _ := e.Embed(ctx, "我喜欢爬山和徒步")
	near, _ := e.Embed(ctx, "我很喜欢爬山")
	far, _ := e.Embed(ctx, "the quarterly revenue report")

	assert.Greater(t, cosine(base, near), cosine(base, far))
}

func TestEmbedder_FeaturelessInputIsUnit(t *testing.T) {
	e := mock.NewWithDimensions(32)
	vec, err := e.Embed(context.Background(), "？！")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cosine(vec, vec), 1e-4)
}
