package providers

import (
	"context"

	"github.com/samvad-hq/samvad-flashcards/internal/domain"
	"github.com/samvad-hq/samvad-flashcards/pkg/httpclient"
)

// Fetcher searches one news API for a keyword and normalizes the hits.
// Concrete implementations live in provider-specific files (e.g., newsapi.go).
type Fetcher interface {
	ID() string
	Fetch(ctx context.Context, cfg Provider, keyword string) ([]domain.Article, error)
}

// FetcherRegistry resolves the fetcher implementation for a given provider config.
type FetcherRegistry interface {
	FetcherFor(cfg Provider) (Fetcher, error)
}

// HTTPClient aliases the shared httpclient.Client interface for clarity within providers.
type HTTPClient = httpclient.Client
