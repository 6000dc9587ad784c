package main

import (
	"fmt"
	"log"

	"repochat-be/internal/config"
	"repochat-be/internal/model"
	"repochat-be/pkg/database"
)

func main() {
	// 1. Load Configuration (.env is read by config.Load)
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.App.Environment == "production")
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Step 1: Setting up extensions...")
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`).Error; err != nil {
		log.Fatalf("Error: pgvector extension is required: %v", err)
	}

	log.Println("Step 2: Running AutoMigrate...")
	if err := db.AutoMigrate(&model.ChunkEmbedding{}); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// 3. Post-Migration: fix the vector width and index it for cosine search
	log.Printf("Step 3: Pinning embedding width to %d...", cfg.VectorStore.Dimension)
	postMigrationSQL := []string{
		fmt.Sprintf(`ALTER TABLE chunk_embeddings ALTER COLUMN embedding_value TYPE vector(%d);`, cfg.VectorStore.Dimension),
		`CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_hnsw ON chunk_embeddings USING hnsw (embedding_value vector_cosine_ops);`,
	}

	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	log.Println("Success: chunk store migrated.")
}
