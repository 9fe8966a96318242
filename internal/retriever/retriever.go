package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samvad-hq/samvad-flashcards/internal/domain"
	"github.com/samvad-hq/samvad-flashcards/internal/logger"
	"github.com/samvad-hq/samvad-flashcards/internal/similarity"
	"github.com/samvad-hq/samvad-flashcards/internal/storage"
)

// ErrBackendUnavailable wraps any embedding or index failure. Callers treat it
// as fatal for the whole run.
var ErrBackendUnavailable = errors.New("embedding backend unavailable")

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Options tunes relevance scoring and duplicate detection.
type Options struct {
	// TopK is the number of neighbours inspected per article.
	TopK int
	// DuplicateThreshold is the cosine similarity at or above which an
	// article is considered a duplicate of an indexed one.
	DuplicateThreshold float64
	// MinRelevance drops articles scoring below it against the keyword. Zero disables the check.
	MinRelevance float64
	Collection   string
}

const (
	defaultTopK      = 2
	defaultThreshold = 0.92
	defaultColl      = "news"
)

// FilterStats summarises one Filter call.
type FilterStats struct {
	Input      int `json:"input"`
	Empty      int `json:"empty"`
	Irrelevant int `json:"irrelevant"`
	Duplicates int `json:"duplicates"`
	Kept       int `json:"kept"`
}

// ArticleRetriever scores articles against a keyword and keeps only those not
// already present in the vector index.
type ArticleRetriever struct {
	embedder Embedder
	index    storage.Index
	opts     Options
	log      logger.Logger

	mu    sync.Mutex
	stats FilterStats
}

// New builds a retriever over the given embedder and index.
func New(embedder Embedder, index storage.Index, opts Options, log logger.Logger) *ArticleRetriever {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.DuplicateThreshold <= 0 {
		opts.DuplicateThreshold = defaultThreshold
	}
	if strings.TrimSpace(opts.Collection) == "" {
		opts.Collection = defaultColl
	}
	return &ArticleRetriever{
		embedder: embedder,
		index:    index,
		opts:     opts,
		log:      logger.Ensure(log),
	}
}

// Filter returns the articles that are relevant to keyword and not
// near-duplicates of anything already indexed, in input order. Kept articles
// are indexed immediately, so a later near-identical article in the same
// batch is dropped too. Each kept article carries its embedding and score.
func (r *ArticleRetriever) Filter(ctx context.Context, keyword string, articles []domain.Article) ([]domain.Article, error) {
	stats := FilterStats{Input: len(articles)}
	defer r.setStats(&stats)

	query, err := r.embed(ctx, keyword)
	if err != nil {
		return nil, fmt.Errorf("embed keyword: %w", err)
	}

	kept := make([]domain.Article, 0, len(articles))
	for _, art := range articles {
		text := art.Text()
		if text == "" {
			stats.Empty++
			continue
		}

		vec, err := r.embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed article %q: %w", art.Title, err)
		}

		score, err := similarity.CosineSimilarity(query, vec)
		if err != nil {
			return nil, fmt.Errorf("%w: score article %q: %w", ErrBackendUnavailable, art.Title, err)
		}
		if r.opts.MinRelevance != 0 && score < r.opts.MinRelevance {
			stats.Irrelevant++
			r.log.DebugObj("article below relevance threshold", "article", map[string]any{
				"title": art.Title,
				"score": score,
			})
			continue
		}

		hits, err := r.index.Search(ctx, vec, r.opts.TopK)
		if err != nil {
			return nil, fmt.Errorf("%w: search index: %w", ErrBackendUnavailable, err)
		}
		if dup, ok := firstDuplicate(hits, r.opts.DuplicateThreshold); ok {
			stats.Duplicates++
			r.log.DebugObj("duplicate article skipped", "article", map[string]any{
				"title":      art.Title,
				"link":       art.Link,
				"matches":    dup.Link,
				"similarity": dup.Similarity,
			})
			continue
		}

		if err := r.index.Add(ctx, r.document(art, text, vec)); err != nil {
			return nil, fmt.Errorf("%w: index article %q: %w", ErrBackendUnavailable, art.Title, err)
		}

		art.Embedding = vec
		art.Score = score
		kept = append(kept, art)
		stats.Kept++
	}

	r.log.InfoObj("relevance filter completed", "filter_stats", stats)
	return kept, nil
}

// AddArticles indexes articles without any duplicate check.
func (r *ArticleRetriever) AddArticles(ctx context.Context, articles []domain.Article) error {
	for _, art := range articles {
		text := art.Text()
		if text == "" {
			continue
		}
		vec := art.Embedding
		if len(vec) == 0 {
			var err error
			if vec, err = r.embed(ctx, text); err != nil {
				return fmt.Errorf("embed article %q: %w", art.Title, err)
			}
		}
		if err := r.index.Add(ctx, r.document(art, text, vec)); err != nil {
			return fmt.Errorf("%w: index article %q: %w", ErrBackendUnavailable, art.Title, err)
		}
	}
	return nil
}

// Search returns the k indexed documents most similar to query.
func (r *ArticleRetriever) Search(ctx context.Context, query string, k int) ([]storage.Neighbor, error) {
	if k <= 0 {
		k = r.opts.TopK
	}
	vec, err := r.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: search index: %w", ErrBackendUnavailable, err)
	}
	return hits, nil
}

// LastStats reports the counters of the most recent Filter call.
func (r *ArticleRetriever) LastStats() FilterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *ArticleRetriever) setStats(stats *FilterStats) {
	r.mu.Lock()
	r.stats = *stats
	r.mu.Unlock()
}

func (r *ArticleRetriever) embed(ctx context.Context, text string) ([]float64, error) {
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrBackendUnavailable)
	}
	return similarity.Normalized(vec), nil
}

func (r *ArticleRetriever) document(art domain.Article, text string, vec []float64) storage.Document {
	id := art.ID
	if id == "" {
		id = domain.ArticleID(art.Link)
	}
	return storage.Document{
		ID:         id,
		Collection: r.opts.Collection,
		Text:       text,
		Link:       art.Link,
		Vector:     vec,
	}
}

func firstDuplicate(hits []storage.Neighbor, threshold float64) (storage.Neighbor, bool) {
	for _, h := range hits {
		if h.Similarity >= threshold {
			return h, true
		}
	}
	return storage.Neighbor{}, false
}
