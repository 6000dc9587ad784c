package vectorstore

import (
	"context"
	"errors"

	"repochat-be/pkg/apperror"
	"repochat-be/pkg/embedding"
	"repochat-be/pkg/store"
)

// Retriever binds an index to the embedder that filled it and a fixed k.
type Retriever struct {
	index    Index
	embedder embedding.EmbeddingProvider
	k        int
}

func NewRetriever(index Index, embedder embedding.EmbeddingProvider, k int) *Retriever {
	return &Retriever{index: index, embedder: embedder, k: k}
}

// Retrieve embeds query and returns up to k chunks. An empty index yields no chunks and no error.
// Embedder failures come back as ModelCallFailed; cancellation is returned as is.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]store.Document, error) {
	if r.index.Len() == 0 {
		return []store.Document{}, nil
	}

	res, err := r.embedder.Generate(ctx, query, embedding.TaskRetrievalQuery)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, apperror.ModelCallFailed("embed query", err)
	}

	docs, err := r.index.Search(ctx, res.Embedding.Values, r.k)
	if err != nil {
		return nil, err
	}
	return docs, nil
}
