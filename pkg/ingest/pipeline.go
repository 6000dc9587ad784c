package ingest

import (
	"context"
	"errors"

	"repochat-be/pkg/apperror"
	"repochat-be/pkg/store"
)

// Run loads and splits a corpus. Every failure is reported as IngestionFailed.
func Run(ctx context.Context, loader Loader, splitter *Splitter) ([]store.Document, error) {
	docs, err := loader.Load(ctx)
	if err != nil {
		if errors.Is(err, apperror.ErrIngestionFailed) {
			return nil, err
		}
		return nil, apperror.IngestionFailed("load source", err)
	}

	chunks, err := splitter.Split(docs)
	if err != nil {
		return nil, apperror.IngestionFailed("split documents", err)
	}

	if len(chunks) == 0 {
		return nil, apperror.IngestionFailed("no indexable content", nil)
	}
	return chunks, nil
}
