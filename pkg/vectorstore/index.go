package vectorstore

import (
	"context"

	"repochat-be/pkg/store"
)

// Index is the searchable chunk collection owned by one session.
type Index interface {
	ID() string
	// Add stores docs with their vectors; len(docs) must equal len(vectors).
	Add(ctx context.Context, docs []store.Document, vectors [][]float32) error
	// Search returns at most k documents ordered by descending similarity.
	Search(ctx context.Context, vector []float32, k int) ([]store.Document, error)
	Len() int
	Close(ctx context.Context) error
}

// Factory creates indexes and releases them by id once their session is gone.
type Factory interface {
	NewIndex(ctx context.Context) (Index, error)
	Release(ctx context.Context, id string) error
}
