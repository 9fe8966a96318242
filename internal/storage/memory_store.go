package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryIndex is an ephemeral Index for tests and dry runs.
type MemoryIndex struct {
	mu         sync.RWMutex
	docs       map[string]Document
	order      []string
	collection string
	ttl        time.Duration
	now        func() time.Time
}

// NewMemoryIndex returns an empty in-memory index.
func NewMemoryIndex(opts Options) *MemoryIndex {
	opts = normalizeOptions(opts)
	return &MemoryIndex{
		docs:       make(map[string]Document),
		collection: opts.Collection,
		ttl:        opts.TTL,
		now:        time.Now,
	}
}

func (m *MemoryIndex) Add(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := prepareDocument(doc, m.collection, m.now())
	if err != nil {
		return err
	}
	doc.Vector = append([]float64(nil), doc.Vector...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[doc.ID]; !exists {
		m.order = append(m.order, doc.ID)
	}
	m.docs[doc.ID] = doc
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, vector []float64, k int) ([]Neighbor, error) {
	if err := validateQuery(vector, k); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := m.now()
	r := newRanker(vector, k)

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		doc := m.docs[id]
		if expired(doc.AddedAt, m.ttl, now) {
			continue
		}
		r.consider(doc)
	}
	return r.result(), nil
}

func (m *MemoryIndex) Count(context.Context) (int, error) {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, doc := range m.docs {
		if !expired(doc.AddedAt, m.ttl, now) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryIndex) Close() error { return nil }
