package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// ChunkEmbedding is one indexed chunk of a session corpus. Rows of a session share a CollectionId.
type ChunkEmbedding struct {
	Id             uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CollectionId   uuid.UUID         `gorm:"type:uuid;not null;index"`
	Document       string            `gorm:"type:text"`
	EmbeddingValue pgvector.Vector   `gorm:"type:vector"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
	ChunkIndex     int               `gorm:"default:0"`
	CreatedAt      time.Time         `gorm:"autoCreateTime"`
}

func (ChunkEmbedding) TableName() string {
	return "chunk_embeddings"
}
