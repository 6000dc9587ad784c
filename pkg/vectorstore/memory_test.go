package vectorstore

import (
	"context"
	"errors"
	"testing"

	"repochat-be/pkg/apperror"
	"repochat-be/pkg/embedding"
	"repochat-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docs(contents ...string) []store.Document {
	out := make([]store.Document, len(contents))
	for i, c := range contents {
		out[i] = store.Document{Content: c, Metadata: map[string]interface{}{store.MetaSource: c + ".go"}}
	}
	return out
}

func TestMemoryIndex_SearchOrdersByCosine(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	err := idx.Add(ctx, docs("east", "north", "north-east"), [][]float32{{1, 0}, {0, 1}, {1, 1}})
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	got, err := idx.Search(ctx, []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "north", got[0].Content)
	assert.Equal(t, "north-east", got[1].Content)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, "north.go", got[0].Source())
}

func TestMemoryIndex_SearchBounds(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	empty, err := idx.Search(ctx, []float32{1, 0}, 15)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, idx.Add(ctx, docs("a", "b"), [][]float32{{1, 0}, {0, 1}}))

	all, err := idx.Search(ctx, []float32{1, 0}, 15)
	require.NoError(t, err)
	assert.Len(t, all, 2, "k larger than the index returns everything")

	none, err := idx.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryIndex_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	assert.Error(t, idx.Add(ctx, docs("a"), nil))

	require.NoError(t, idx.Add(ctx, docs("a"), [][]float32{{1, 0, 0}}))
	assert.Error(t, idx.Add(ctx, docs("b"), [][]float32{{1, 0}}))

	_, err := idx.Search(ctx, []float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestMemoryFactory_Release(t *testing.T) {
	ctx := context.Background()
	f := NewMemoryFactory()

	idx, err := f.NewIndex(ctx)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, docs("a"), [][]float32{{1}}))
	assert.Equal(t, 1, f.Live())

	require.NoError(t, f.Release(ctx, idx.ID()))
	assert.Equal(t, 0, f.Live())
	assert.Equal(t, 0, idx.Len())

	require.NoError(t, f.Release(ctx, idx.ID()), "release is idempotent")
}

type axisEmbedder struct {
	calls int
	err   error
}

func (e *axisEmbedder) Generate(ctx context.Context, text string, taskType string) (*embedding.EmbeddingResponse, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if text == "north" {
		return &embedding.EmbeddingResponse{Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{0, 1}}}, nil
	}
	return &embedding.EmbeddingResponse{Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{1, 0}}}, nil
}

func TestRetriever(t *testing.T) {
	ctx := context.Background()

	t.Run("empty index skips the embedder", func(t *testing.T) {
		emb := &axisEmbedder{}
		r := NewRetriever(NewMemoryIndex(), emb, 15)

		got, err := r.Retrieve(ctx, "anything")
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, 0, emb.calls)
	})

	t.Run("returns at most k", func(t *testing.T) {
		idx := NewMemoryIndex()
		require.NoError(t, idx.Add(ctx, docs("e1", "e2", "n1"), [][]float32{{1, 0}, {1, 0.1}, {0, 1}}))

		r := NewRetriever(idx, &axisEmbedder{}, 1)
		got, err := r.Retrieve(ctx, "north")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "n1", got[0].Content)
	})

	t.Run("embedder failures", func(t *testing.T) {
		tests := []struct {
			name     string
			err      error
			wantKind apperror.Kind
			wantRaw  error
		}{
			{name: "provider error is a model failure", err: errors.New("down"), wantKind: apperror.KindModelCallFailed},
			{name: "api error is a model failure", err: &embedding.APIError{Provider: "ollama", StatusCode: 500}, wantKind: apperror.KindModelCallFailed},
			{name: "cancel stays raw", err: context.Canceled, wantRaw: context.Canceled},
			{name: "deadline stays raw", err: context.DeadlineExceeded, wantRaw: context.DeadlineExceeded},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				idx := NewMemoryIndex()
				require.NoError(t, idx.Add(ctx, docs("a"), [][]float32{{1, 0}}))

				r := NewRetriever(idx, &axisEmbedder{err: tt.err}, 3)
				_, err := r.Retrieve(ctx, "q")
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.err)

				if tt.wantRaw != nil {
					assert.Equal(t, tt.wantRaw, err)
					return
				}
				assert.Equal(t, tt.wantKind, apperror.KindOf(err))
			})
		}
	})
}
