package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// GenerateBatch embeds texts with at most concurrency requests in flight.
// The result keeps input order; the first failure cancels the rest.
func GenerateBatch(ctx context.Context, p EmbeddingProvider, texts []string, taskType string, concurrency int) ([][]float32, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, text := range texts {
		g.Go(func() error {
			res, err := p.Generate(gctx, text, taskType)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			vectors[i] = res.Embedding.Values
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
