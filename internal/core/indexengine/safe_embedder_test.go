package indexengine

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEmbedder implements core.EmbeddingProvider for testing
type testEmbedder struct {
	vectors [][]float32
	err     error
	calls   int
}

func (m *testEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.vectors != nil {
		return m.vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func TestSafeEmbedderPassesThroughHealthyVectors(t *testing.T) {
	inner := &testEmbedder{vectors: [][]float32{{1, 2, 3}, {4, 5, 6}}}
	se := NewSafeEmbedder(inner, 3)

	vecs, err := se.EmbedTexts(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, vecs)
}

func TestSafeEmbedderSubstitutesZerosOnNumericError(t *testing.T) {
	inner := &testEmbedder{err: errors.New("backend returned NaN in embedding")}
	se := NewSafeEmbedder(inner, 4)

	vecs, err := se.EmbedTexts(context.Background(), []string{"[DOC_ID:doc-1]\n\nchunk one", "chunk two"})

	require.NoError(t, err)
	require.Len(t, vecs, 2)
	for _, v := range vecs {
		assert.Equal(t, []float32{0, 0, 0, 0}, v)
	}
}

func TestSafeEmbedderSubstitutesZerosOnNonFiniteVector(t *testing.T) {
	bad := float32(math.NaN())
	inner := &testEmbedder{vectors: [][]float32{{1, 2}, {bad, 3}}}
	se := NewSafeEmbedder(inner, 2)

	vecs, err := se.EmbedTexts(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 0}, {0, 0}}, vecs)
}

func TestSafeEmbedderPropagatesNetworkErrors(t *testing.T) {
	inner := &testEmbedder{err: errors.New("dial tcp: connection refused")}
	se := NewSafeEmbedder(inner, 3)

	_, err := se.EmbedTexts(context.Background(), []string{"a"})

	assert.Error(t, err)
}

func TestSafeEmbedderWarnsOncePerDocument(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })

	inner := &testEmbedder{err: errors.New("status 500 from embedding backend")}
	se := NewSafeEmbedder(inner, 2)
	texts := []string{"[DOC_ID:doc-7]\n\nsome chunk"}

	for i := 0; i < 5; i++ {
		_, err := se.EmbedTexts(context.Background(), texts)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, strings.Count(buf.String(), "doc=doc-7"))

	// Reset re-arms the warning for a reprocessing attempt.
	se.Reset("doc-7")
	_, err := se.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(buf.String(), "doc=doc-7"))
}
