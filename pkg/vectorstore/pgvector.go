package vectorstore

import (
	"context"
	"fmt"
	"sync/atomic"

	"repochat-be/internal/model"
	"repochat-be/pkg/store"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PgIndex stores a session's chunks in chunk_embeddings under one collection id.
type PgIndex struct {
	db           *gorm.DB
	collectionID uuid.UUID
	count        atomic.Int64
}

var _ Index = &PgIndex{}

func (p *PgIndex) ID() string { return p.collectionID.String() }

func (p *PgIndex) Add(ctx context.Context, docs []store.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("docs/vectors length mismatch: %d != %d", len(docs), len(vectors))
	}
	if len(docs) == 0 {
		return nil
	}

	rows := make([]*model.ChunkEmbedding, len(docs))
	for i, doc := range docs {
		chunkIndex, _ := doc.Metadata[store.MetaChunkIndex].(int)
		rows[i] = &model.ChunkEmbedding{
			Id:             uuid.New(),
			CollectionId:   p.collectionID,
			Document:       doc.Content,
			EmbeddingValue: pgvector.NewVector(vectors[i]),
			Metadata:       datatypes.JSONMap(doc.Metadata),
			ChunkIndex:     chunkIndex,
		}
	}

	if err := p.db.WithContext(ctx).CreateInBatches(rows, 200).Error; err != nil {
		return fmt.Errorf("insert chunk embeddings: %w", err)
	}
	p.count.Add(int64(len(rows)))
	return nil
}

func (p *PgIndex) Search(ctx context.Context, vector []float32, k int) ([]store.Document, error) {
	if k <= 0 {
		return nil, nil
	}

	type result struct {
		model.ChunkEmbedding
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(vector)

	// Cosine distance in pgvector is 1 - cosine_similarity
	err := p.db.WithContext(ctx).
		Table("chunk_embeddings").
		Select("chunk_embeddings.*, 1 - (embedding_value <=> ?) as similarity", queryVector).
		Where("collection_id = ?", p.collectionID).
		Order("similarity DESC").
		Limit(k).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("search chunk embeddings: %w", err)
	}

	docs := make([]store.Document, len(results))
	for i, res := range results {
		docs[i] = store.Document{
			ID:       res.Id.String(),
			Content:  res.Document,
			Score:    float32(res.Similarity),
			Metadata: map[string]interface{}(res.Metadata),
		}
	}
	return docs, nil
}

func (p *PgIndex) Len() int {
	return int(p.count.Load())
}

func (p *PgIndex) Close(ctx context.Context) error {
	return deleteCollection(ctx, p.db, p.collectionID)
}

func deleteCollection(ctx context.Context, db *gorm.DB, collectionID uuid.UUID) error {
	if err := deleteCollectionTx(db.WithContext(ctx), collectionID).Error; err != nil {
		return fmt.Errorf("delete collection %s: %w", collectionID, err)
	}
	return nil
}

func deleteCollectionTx(db *gorm.DB, collectionID uuid.UUID) *gorm.DB {
	return db.Where("collection_id = ?", collectionID).Delete(&model.ChunkEmbedding{})
}

func purgeTx(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.ChunkEmbedding{})
}

type PgFactory struct {
	db *gorm.DB
}

var _ Factory = &PgFactory{}

func NewPgFactory(db *gorm.DB) *PgFactory {
	return &PgFactory{db: db}
}

// Purge drops every chunk row in the table. Sessions live in process memory, so
// rows present when the process starts belong to no session.
func (f *PgFactory) Purge(ctx context.Context) (int64, error) {
	res := purgeTx(f.db.WithContext(ctx))
	if res.Error != nil {
		return 0, fmt.Errorf("purge chunk embeddings: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (f *PgFactory) NewIndex(ctx context.Context) (Index, error) {
	return &PgIndex{db: f.db, collectionID: uuid.New()}, nil
}

func (f *PgFactory) Release(ctx context.Context, id string) error {
	collectionID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid collection id %q: %w", id, err)
	}
	return deleteCollection(ctx, f.db, collectionID)
}
