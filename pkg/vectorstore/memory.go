package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"repochat-be/pkg/store"

	"github.com/google/uuid"
)

// MemoryIndex is a brute-force cosine index. Good enough for a single repository.
type MemoryIndex struct {
	id   string
	mu   sync.RWMutex
	docs []store.Document
	vecs [][]float32
	dim  int
}

var _ Index = &MemoryIndex{}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{id: uuid.NewString()}
}

func (m *MemoryIndex) ID() string { return m.id }

func (m *MemoryIndex) Add(ctx context.Context, docs []store.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("docs/vectors length mismatch: %d != %d", len(docs), len(vectors))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, v := range vectors {
		if m.dim == 0 {
			m.dim = len(v)
		}
		if len(v) != m.dim {
			return fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(v), m.dim)
		}
	}

	for i := range docs {
		doc := docs[i]
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		m.docs = append(m.docs, doc)
		m.vecs = append(m.vecs, vectors[i])
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, vector []float32, k int) ([]store.Document, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.docs) == 0 {
		return []store.Document{}, nil
	}
	if len(vector) != m.dim {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(vector), m.dim)
	}

	type scored struct {
		idx   int
		score float32
	}
	results := make([]scored, len(m.docs))
	for i, v := range m.vecs {
		results[i] = scored{idx: i, score: cosine(vector, v)}
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].score > results[b].score
	})

	if k > len(results) {
		k = len(results)
	}
	out := make([]store.Document, k)
	for i := 0; i < k; i++ {
		doc := m.docs[results[i].idx]
		doc.Score = results[i].score
		out[i] = doc
	}
	return out, nil
}

func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryIndex) Close(ctx context.Context) error {
	m.mu.Lock()
	m.docs, m.vecs = nil, nil
	m.mu.Unlock()
	return nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// MemoryFactory tracks live in-memory indexes so Release can drop them.
type MemoryFactory struct {
	mu      sync.Mutex
	indexes map[string]*MemoryIndex
}

var _ Factory = &MemoryFactory{}

func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{indexes: make(map[string]*MemoryIndex)}
}

func (f *MemoryFactory) NewIndex(ctx context.Context) (Index, error) {
	idx := NewMemoryIndex()
	f.mu.Lock()
	f.indexes[idx.ID()] = idx
	f.mu.Unlock()
	return idx, nil
}

// Release is idempotent.
func (f *MemoryFactory) Release(ctx context.Context, id string) error {
	f.mu.Lock()
	idx, ok := f.indexes[id]
	delete(f.indexes, id)
	f.mu.Unlock()

	if !ok {
		return nil
	}
	return idx.Close(ctx)
}

// Live reports how many indexes have not been released.
func (f *MemoryFactory) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indexes)
}
