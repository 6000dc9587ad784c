package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"repochat-be/pkg/apperror"
	"repochat-be/pkg/store"

	"github.com/gabriel-vasile/mimetype"
)

// Non text/* types that still carry plain text.
var textLikeTypes = []string{
	"application/json",
	"application/xml",
	"application/x-yaml",
	"application/javascript",
	"application/x-sh",
	"application/x-ndjson",
	"application/toml",
}

// FileLoader turns one uploaded file into a single document.
type FileLoader struct {
	name     string
	data     []byte
	maxBytes int
}

var _ Loader = &FileLoader{}

func NewFileLoader(name string, data []byte, maxBytes int) *FileLoader {
	return &FileLoader{name: filepath.Base(name), data: data, maxBytes: maxBytes}
}

func (l *FileLoader) Load(ctx context.Context) ([]store.Document, error) {
	if len(l.data) == 0 {
		return nil, apperror.IngestionFailed(fmt.Sprintf("file %q is empty", l.name), nil)
	}
	if l.maxBytes > 0 && len(l.data) > l.maxBytes {
		return nil, apperror.IngestionFailed(fmt.Sprintf("file %q exceeds %d bytes", l.name, l.maxBytes), nil)
	}

	mtype := mimetype.Detect(l.data)
	if !isTextual(mtype) || !utf8.Valid(l.data) {
		return nil, apperror.IngestionFailed(fmt.Sprintf("unsupported format %s for %q", mtype.String(), l.name), nil)
	}

	return []store.Document{{
		Content: string(l.data),
		Metadata: map[string]interface{}{
			store.MetaSource: l.name,
			"content_type":   mtype.String(),
		},
	}}, nil
}

func isTextual(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "text/") {
			return true
		}
		for _, t := range textLikeTypes {
			if m.Is(t) {
				return true
			}
		}
	}
	return false
}
