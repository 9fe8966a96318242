package crawler

import (
	"context"

	"github.com/samvad-hq/samvad-flashcards/internal/domain"
	"github.com/samvad-hq/samvad-flashcards/pkg/providers"
)

// ArticleScraper enriches collected articles with page metadata (e.g., OG tags).
type ArticleScraper interface {
	Enrich(ctx context.Context, cfg providers.Provider, articles []domain.Article) []domain.Article
}
