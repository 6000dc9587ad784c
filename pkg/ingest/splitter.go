package ingest

import (
	"fmt"

	"repochat-be/pkg/store"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter cuts documents into overlapping chunks, preferring paragraph, line and word boundaries.
type Splitter struct {
	splitter textsplitter.TextSplitter
}

func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 200
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &Splitter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Split keeps the source metadata on every chunk and numbers chunks per document.
func (s *Splitter) Split(docs []store.Document) ([]store.Document, error) {
	var chunks []store.Document
	for _, doc := range docs {
		parts, err := s.splitter.SplitText(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", doc.Source(), err)
		}

		for i, part := range parts {
			meta := make(map[string]interface{}, len(doc.Metadata)+1)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta[store.MetaChunkIndex] = i

			chunks = append(chunks, store.Document{
				ID:       uuid.NewString(),
				Content:  part,
				Metadata: meta,
			})
		}
	}
	return chunks, nil
}
