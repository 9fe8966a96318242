package crawler

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-flashcards/internal/domain"
	"github.com/samvad-hq/samvad-flashcards/internal/logger"
	"github.com/samvad-hq/samvad-flashcards/pkg/httpclient"
	"github.com/samvad-hq/samvad-flashcards/pkg/providers"
)

const (
	maxHTMLBodyBytes = 1 << 20 // 1 MiB
	maxContentChars  = 4000
)

// Scraper fetches article pages and fills missing summary/content from the
// page metadata and body paragraphs.
type Scraper struct {
	client httpclient.Client
	log    logger.Logger
}

// NewScraper constructs a scraper with the provided HTTP client (or default).
func NewScraper(client httpclient.Client, log logger.Logger) *Scraper {
	if client == nil {
		client = providers.DefaultHTTPClient()
	}
	return &Scraper{client: client, log: logger.Ensure(log)}
}

// Enrich iterates articles, fetching each page (with throttling) and merging
// metadata into empty fields. Articles whose page cannot be read are returned
// unchanged.
func (s *Scraper) Enrich(ctx context.Context, cfg providers.Provider, articles []domain.Article) []domain.Article {
	delay := cfg.RequestDelay()
	// seed output with originals so we can return what we have on abort
	out := append([]domain.Article(nil), articles...)

	for i, art := range articles {
		select {
		case <-ctx.Done():
			return out[:i]
		default:
		}

		enriched, err := s.fetchAndParse(ctx, cfg, art)
		if err != nil {
			s.log.WarnObj("article metadata scrape failed", "metadata_error", map[string]any{
				"provider_id": cfg.ID,
				"url":         art.Link,
				"error":       err.Error(),
			})
		} else {
			out[i] = enriched
		}

		if delay > 0 && i < len(articles)-1 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out[:i+1]
			case <-timer.C:
			}
		}
	}

	return out
}

func (s *Scraper) fetchAndParse(ctx context.Context, cfg providers.Provider, art domain.Article) (domain.Article, error) {
	resp, err := s.client.Get(ctx, art.Link, nil, providers.Headers(cfg))
	if err != nil {
		return art, fmt.Errorf("http fetch: %w", err)
	}

	if resp.StatusCode() != 200 {
		snippet := strings.TrimSpace(string(resp.Body()))
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return art, fmt.Errorf("status %d body: %s", resp.StatusCode(), snippet)
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}

	meta, err := parseMeta(body)
	if err != nil {
		return art, err
	}
	return mergeMeta(art, meta), nil
}

// mergeMeta only fills fields the provider left empty.
func mergeMeta(art domain.Article, meta pageMeta) domain.Article {
	if strings.TrimSpace(art.Title) == "" {
		art.Title = meta.Title
	}
	if strings.TrimSpace(art.Summary) == "" {
		art.Summary = meta.Description
	}
	if strings.TrimSpace(art.Content) == "" {
		art.Content = firstNonEmpty(meta.Body, meta.Description)
	}
	if strings.TrimSpace(art.Source) == "" {
		art.Source = meta.SiteName
	}
	if strings.TrimSpace(art.PublishedAt) == "" {
		art.PublishedAt = meta.PublishedAt
	}
	return art
}

func parseMeta(body []byte) (pageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageMeta{}, fmt.Errorf("parse html: %w", err)
	}

	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	pm := pageMeta{
		Title: firstNonEmpty(
			extract(`meta[property="og:title"]`),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		Description: firstNonEmpty(
			extract(`meta[property="og:description"]`),
			extract(`meta[name="description"]`),
		),
		SiteName:    extract(`meta[property="og:site_name"]`),
		PublishedAt: extract(`meta[property="article:published_time"]`),
		Body:        articleBody(doc),
	}
	return pm, nil
}

// articleBody joins paragraph text, preferring an <article> element when present.
func articleBody(doc *goquery.Document) string {
	scope := doc.Find("article").First()
	if scope.Length() == 0 {
		scope = doc.Find("body").First()
	}

	var b strings.Builder
	scope.Find("p").Each(func(_ int, p *goquery.Selection) {
		if b.Len() >= maxContentChars {
			return
		}
		text := strings.Join(strings.Fields(p.Text()), " ")
		if text == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(text)
	})

	out := b.String()
	if len(out) > maxContentChars {
		out = out[:maxContentChars]
	}
	return out
}

type pageMeta struct {
	Title       string
	Description string
	SiteName    string
	PublishedAt string
	Body        string
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
