package store

// Document is a retrievable chunk of source text together with its provenance.
type Document struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Score    float32                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Source returns the originating path recorded in the metadata, if any.
func (d Document) Source() string {
	if d.Metadata == nil {
		return ""
	}
	if s, ok := d.Metadata[MetaSource].(string); ok {
		return s
	}
	return ""
}

// Metadata keys set by the ingestion pipeline
const (
	MetaSource     = "source"
	MetaRepository = "repository"
	MetaBranch     = "branch"
	MetaChunkIndex = "chunk_index"
)
