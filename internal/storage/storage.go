package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samvad-hq/samvad-flashcards/internal/similarity"
)

// Package storage provides the persistent embedding index used for relevance
// scoring and near-duplicate detection.

// Index stores document embeddings and answers nearest-neighbour queries.
type Index interface {
	Add(ctx context.Context, doc Document) error
	Search(ctx context.Context, vector []float64, k int) ([]Neighbor, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Document is one indexed embedding.
type Document struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Text       string    `json:"text"`
	Link       string    `json:"link"`
	Vector     []float64 `json:"vector"`
	AddedAt    time.Time `json:"added_at"`
}

// Neighbor is a search hit with its cosine similarity to the query.
type Neighbor struct {
	Document
	Similarity float64
}

// Options controls collection naming and retention for concrete index implementations.
type Options struct {
	Collection      string
	TTL             time.Duration
	CleanupInterval time.Duration
}

// Supported index backends.
const (
	TypeBolt   = "bbolt"
	TypeSQLite = "sqlite"
	TypeMemory = "memory"
)

const (
	defaultCollection      = "news"
	defaultTTL             = 30 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

var (
	// ErrEmptyVector is returned when adding or searching without an embedding.
	ErrEmptyVector = errors.New("empty vector")
	// ErrClosed is returned by operations on a closed index.
	ErrClosed = errors.New("index is closed")
)

// NewIndex creates the configured index backend rooted at dir.
func NewIndex(typ, dir string, opts Options) (Index, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", TypeBolt:
		if strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("bbolt index requires a directory")
		}
		return openBolt(filepath.Join(dir, "index.db"), opts)
	case TypeSQLite:
		if strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("sqlite index requires a directory")
		}
		return openSQLite(filepath.Join(dir, "index.sqlite3"), opts)
	case TypeMemory:
		return NewMemoryIndex(opts), nil
	default:
		return nil, fmt.Errorf("unsupported index type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	opts.Collection = strings.TrimSpace(opts.Collection)
	if opts.Collection == "" {
		opts.Collection = defaultCollection
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

func prepareDocument(doc Document, collection string, now time.Time) (Document, error) {
	if strings.TrimSpace(doc.ID) == "" {
		return Document{}, fmt.Errorf("document id is required")
	}
	if len(doc.Vector) == 0 {
		return Document{}, ErrEmptyVector
	}
	doc.Collection = collection
	if doc.AddedAt.IsZero() {
		doc.AddedAt = now
	}
	doc.AddedAt = doc.AddedAt.UTC()
	return doc, nil
}

// ranker keeps the k most similar documents seen so far.
type ranker struct {
	query []float64
	k     int
	hits  []Neighbor
}

func newRanker(query []float64, k int) *ranker {
	return &ranker{query: query, k: k}
}

// consider scores doc against the query. Documents with a different dimension
// (e.g. written by another embedding model) or a zero vector are skipped.
func (r *ranker) consider(doc Document) {
	if len(doc.Vector) != len(r.query) {
		return
	}
	sim, err := similarity.CosineSimilarity(r.query, doc.Vector)
	if err != nil {
		return
	}
	r.hits = append(r.hits, Neighbor{Document: doc, Similarity: sim})
}

func (r *ranker) result() []Neighbor {
	sort.SliceStable(r.hits, func(i, j int) bool {
		return r.hits[i].Similarity > r.hits[j].Similarity
	})
	if len(r.hits) > r.k {
		r.hits = r.hits[:r.k]
	}
	return r.hits
}

func validateQuery(vector []float64, k int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	if k <= 0 {
		return fmt.Errorf("invalid k %d (must be positive)", k)
	}
	return nil
}

// sweeper gates expiry sweeps to a fixed cadence so the index does not grow unbounded.
type sweeper struct {
	mu       sync.Mutex
	last     atomic.Int64
	interval time.Duration
}

func newSweeper(interval time.Duration, now time.Time) *sweeper {
	s := &sweeper{interval: interval}
	s.last.Store(now.Unix())
	return s
}

// maybeRun calls sweep when the cadence has elapsed, at most once per interval.
func (s *sweeper) maybeRun(now time.Time, sweep func(now time.Time) error) error {
	last := time.Unix(s.last.Load(), 0)
	if now.Sub(last) < s.interval {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	last = time.Unix(s.last.Load(), 0)
	if now.Sub(last) < s.interval {
		return nil
	}

	if err := sweep(now); err != nil {
		return err
	}
	s.last.Store(now.Unix())
	return nil
}

func expired(addedAt time.Time, ttl time.Duration, now time.Time) bool {
	return !addedAt.Add(ttl).After(now)
}
