package providers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/samvad-hq/samvad-flashcards/internal/domain"
)

// newsAPIFetcher queries the NewsAPI.org everything endpoint.
type newsAPIFetcher struct {
	client HTTPClient
}

// NewNewsAPIFetcher builds a fetcher for NewsAPI.org.
func NewNewsAPIFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &newsAPIFetcher{client: client}
}

func (f *newsAPIFetcher) ID() string { return ProviderTypeNewsAPI }

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

func (f *newsAPIFetcher) Fetch(ctx context.Context, cfg Provider, keyword string) ([]domain.Article, error) {
	if !strings.EqualFold(cfg.Type, ProviderTypeNewsAPI) {
		return nil, fmt.Errorf("newsapi fetcher received incompatible provider type %q", cfg.Type)
	}
	key, err := APIKey(cfg)
	if err != nil {
		return nil, err
	}

	query := map[string]string{
		"q":        keyword,
		"language": language(cfg),
		"sortBy":   "publishedAt",
		"pageSize": strconv.Itoa(ConfigInt(cfg, ConfigPageSizeKey, 20)),
	}
	headers := Headers(cfg)
	headers["X-Api-Key"] = key

	var resp newsAPIResponse
	if err := fetchJSON(ctx, f.client, cfg.SourceURL, cfg.ID, query, headers, &resp); err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.Status, "ok") {
		return nil, fmt.Errorf("%s api error %s: %s", cfg.ID, resp.Code, resp.Message)
	}

	articles := make([]domain.Article, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		// NewsAPI keeps placeholders for articles pulled after indexing.
		if a.Title == "[Removed]" {
			continue
		}
		if art, ok := newArticle(a.Title, a.Description, a.Content, a.Source.Name, a.URL, a.PublishedAt); ok {
			articles = append(articles, art)
		}
	}
	return articles, nil
}
