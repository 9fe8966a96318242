package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/samvad-hq/samvad-flashcards/internal/domain"
)

// newsDataFetcher queries the NewsData.io latest-news endpoint.
type newsDataFetcher struct {
	client HTTPClient
}

// NewNewsDataFetcher builds a fetcher for NewsData.io.
func NewNewsDataFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &newsDataFetcher{client: client}
}

func (f *newsDataFetcher) ID() string { return ProviderTypeNewsData }

// NewsData reports errors with status=error and an object in place of the
// results list, so results is decoded lazily.
type newsDataResponse struct {
	Status  string          `json:"status"`
	Results json.RawMessage `json:"results"`
}

type newsDataResult struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Content     string `json:"content"`
	PubDate     string `json:"pubDate"`
	SourceID    string `json:"source_id"`
	SourceName  string `json:"source_name"`
}

type newsDataError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (f *newsDataFetcher) Fetch(ctx context.Context, cfg Provider, keyword string) ([]domain.Article, error) {
	if !strings.EqualFold(cfg.Type, ProviderTypeNewsData) {
		return nil, fmt.Errorf("newsdata fetcher received incompatible provider type %q", cfg.Type)
	}
	key, err := APIKey(cfg)
	if err != nil {
		return nil, err
	}

	query := map[string]string{
		"apikey":   key,
		"q":        keyword,
		"language": language(cfg),
	}
	if size := ConfigInt(cfg, ConfigPageSizeKey, 0); size > 0 {
		query["size"] = strconv.Itoa(size)
	}
	if country := ConfigString(cfg, ConfigCountryKey, ""); country != "" {
		query["country"] = country
	}

	var resp newsDataResponse
	if err := fetchJSON(ctx, f.client, cfg.SourceURL, cfg.ID, query, Headers(cfg), &resp); err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.Status, "success") {
		var apiErr newsDataError
		_ = json.Unmarshal(resp.Results, &apiErr)
		return nil, fmt.Errorf("%s api error %s: %s", cfg.ID, apiErr.Code, apiErr.Message)
	}

	var results []newsDataResult
	if len(resp.Results) > 0 {
		if err := json.Unmarshal(resp.Results, &results); err != nil {
			return nil, fmt.Errorf("decode %s results: %w", cfg.ID, err)
		}
	}

	articles := make([]domain.Article, 0, len(results))
	for _, r := range results {
		source := r.SourceName
		if source == "" {
			source = r.SourceID
		}
		if art, ok := newArticle(r.Title, r.Description, r.Content, source, r.Link, r.PubDate); ok {
			articles = append(articles, art)
		}
	}
	return articles, nil
}
