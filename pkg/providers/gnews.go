package providers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/samvad-hq/samvad-flashcards/internal/domain"
)

// gnewsFetcher queries the GNews search endpoint.
type gnewsFetcher struct {
	client HTTPClient
}

// NewGNewsFetcher builds a fetcher for GNews.
func NewGNewsFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &gnewsFetcher{client: client}
}

func (f *gnewsFetcher) ID() string { return ProviderTypeGNews }

type gnewsResponse struct {
	Errors   []string       `json:"errors"`
	Articles []gnewsArticle `json:"articles"`
}

type gnewsArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

func (f *gnewsFetcher) Fetch(ctx context.Context, cfg Provider, keyword string) ([]domain.Article, error) {
	if !strings.EqualFold(cfg.Type, ProviderTypeGNews) {
		return nil, fmt.Errorf("gnews fetcher received incompatible provider type %q", cfg.Type)
	}
	key, err := APIKey(cfg)
	if err != nil {
		return nil, err
	}

	query := map[string]string{
		"q":      keyword,
		"lang":   language(cfg),
		"max":    strconv.Itoa(ConfigInt(cfg, ConfigPageSizeKey, 10)),
		"apikey": key,
	}
	if country := ConfigString(cfg, ConfigCountryKey, ""); country != "" {
		query["country"] = country
	}

	var resp gnewsResponse
	if err := fetchJSON(ctx, f.client, cfg.SourceURL, cfg.ID, query, Headers(cfg), &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("%s api error: %s", cfg.ID, strings.Join(resp.Errors, "; "))
	}

	articles := make([]domain.Article, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if art, ok := newArticle(a.Title, a.Description, a.Content, a.Source.Name, a.URL, a.PublishedAt); ok {
			articles = append(articles, art)
		}
	}
	return articles, nil
}
