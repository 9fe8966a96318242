package providers

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/samvad-hq/samvad-flashcards/internal/domain"
)

// googleNewsFetcher implements Fetcher for the keyless Google News RSS search feed.
type googleNewsFetcher struct {
	client HTTPClient
}

func NewGoogleNewsFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &googleNewsFetcher{client: client}
}

func (f *googleNewsFetcher) ID() string {
	return ProviderTypeGoogleNewsRSS
}

type rssFeed struct {
	Items []rssItem `xml:"channel>item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
	Source      string `xml:"source"`
}

func parseRSS(data []byte) ([]rssItem, error) {
	var feed rssFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, err
	}
	return feed.Items, nil
}

func (f *googleNewsFetcher) Fetch(ctx context.Context, cfg Provider, keyword string) ([]domain.Article, error) {
	if !strings.EqualFold(cfg.Type, ProviderTypeGoogleNewsRSS) {
		return nil, fmt.Errorf("google news fetcher received incompatible provider type %q", cfg.Type)
	}

	lang := language(cfg)
	country := strings.ToUpper(ConfigString(cfg, ConfigCountryKey, "US"))
	query := map[string]string{
		"q":    keyword,
		"hl":   lang + "-" + country,
		"gl":   country,
		"ceid": country + ":" + lang,
	}

	raw, err := fetchBody(ctx, f.client, cfg.SourceURL, cfg.ID, query, Headers(cfg))
	if err != nil {
		return nil, err
	}

	items, err := parseRSS(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s rss: %w", cfg.ID, err)
	}

	limit := ConfigInt(cfg, ConfigPageSizeKey, 20)
	articles := make([]domain.Article, 0, min(limit, len(items)))
	for _, it := range items {
		if len(articles) >= limit {
			break
		}
		source := strings.TrimSpace(it.Source)
		if source == "" {
			source = cfg.Name
		}
		if art, ok := newArticle(it.Title, it.Description, "", source, it.Link, it.PubDate); ok {
			articles = append(articles, art)
		}
	}
	return articles, nil
}
