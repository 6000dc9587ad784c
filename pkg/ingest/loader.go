package ingest

import (
	"context"

	"repochat-be/pkg/store"
)

// Loader produces whole source documents; splitting happens later.
type Loader interface {
	Load(ctx context.Context) ([]store.Document, error)
}

// DefaultExtensions is the allow-list of file suffixes read from repositories.
var DefaultExtensions = []string{
	".py", ".js", ".ts", ".java", ".go", ".md", ".txt", ".rst",
	".json", ".yaml", ".yml", ".html", ".css", ".sh", ".env",
}
