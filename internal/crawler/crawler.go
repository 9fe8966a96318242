package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samvad-hq/samvad-flashcards/internal/domain"
	"github.com/samvad-hq/samvad-flashcards/internal/logger"
	"github.com/samvad-hq/samvad-flashcards/pkg/providers"
)

// ErrNoProviders is returned when Collect is called without any provider.
var ErrNoProviders = errors.New("no providers configured for collection")

// Service aggregates keyword search results across providers.
type Service struct {
	registry providers.FetcherRegistry
	scraper  ArticleScraper
	log      logger.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithScraper enables metadata enrichment for articles that arrive without a
// summary or content.
func WithScraper(s ArticleScraper) Option {
	return func(svc *Service) { svc.scraper = s }
}

// WithLogger sets the logger used for per-provider reporting.
func WithLogger(log logger.Logger) Option {
	return func(svc *Service) { svc.log = logger.Ensure(log) }
}

// NewService wires a crawler with the provider fetcher registry.
func NewService(reg providers.FetcherRegistry, opts ...Option) *Service {
	svc := &Service{registry: reg, log: logger.NopLogger{}}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Collect queries every provider for keyword, one at a time, and returns the
// merged articles deduplicated by link. Provider failures are logged and only
// returned when no provider succeeded.
func (s *Service) Collect(ctx context.Context, cfgs []providers.Provider, keyword string) ([]domain.Article, error) {
	if s == nil || s.registry == nil {
		return nil, fmt.Errorf("crawler service is not initialized")
	}
	if len(cfgs) == 0 {
		return nil, ErrNoProviders
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("keyword is empty")
	}

	var (
		errs []error
		out  []domain.Article
		seen = make(map[string]struct{})
	)
	for _, cfg := range cfgs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		articles, err := s.collectProvider(ctx, cfg, keyword)
		if err != nil {
			errs = append(errs, err)
			s.log.ErrorObj("provider search failed", "provider_error", map[string]any{
				"provider_id": cfg.ID,
				"error":       err.Error(),
			})
			continue
		}

		added := 0
		for _, art := range articles {
			key := strings.TrimSpace(art.Link)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, art)
			added++
		}

		s.log.InfoObj("provider search completed", "provider_result", map[string]any{
			"provider_id":        cfg.ID,
			"articles_collected": len(articles),
			"articles_added":     added,
		})
	}

	if len(errs) == len(cfgs) {
		return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
	}
	return out, nil
}

func (s *Service) collectProvider(ctx context.Context, cfg providers.Provider, keyword string) ([]domain.Article, error) {
	fetcher, err := s.registry.FetcherFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve fetcher for provider %s: %w", cfg.ID, err)
	}

	articles, err := fetcher.Fetch(ctx, cfg, keyword)
	if err != nil {
		return nil, fmt.Errorf("fetch provider %s: %w", cfg.ID, err)
	}

	if s.scraper != nil {
		articles = s.enrichSparse(ctx, cfg, articles)
	}
	return articles, nil
}

// enrichSparse sends only articles missing summary or content through the scraper.
func (s *Service) enrichSparse(ctx context.Context, cfg providers.Provider, articles []domain.Article) []domain.Article {
	var idx []int
	var sparse []domain.Article
	for i, a := range articles {
		if strings.TrimSpace(a.Summary) == "" || strings.TrimSpace(a.Content) == "" {
			idx = append(idx, i)
			sparse = append(sparse, a)
		}
	}
	if len(sparse) == 0 {
		return articles
	}

	enriched := s.scraper.Enrich(ctx, cfg, sparse)
	out := append([]domain.Article(nil), articles...)
	for j, a := range enriched {
		out[idx[j]] = a
	}
	return out
}
