package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-flashcards/internal/domain"
)

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// fetchBody performs the GET and enforces a 200 status.
func fetchBody(ctx context.Context, client HTTPClient, url, providerID string, query, headers map[string]string) ([]byte, error) {
	resp, err := client.Get(ctx, url, query, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", providerID, err)
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d body: %s", providerID, resp.StatusCode(), responseSnippet(body))
	}

	return body, nil
}

func fetchJSON(ctx context.Context, client HTTPClient, url, providerID string, query, headers map[string]string, out any) error {
	body, err := fetchBody(ctx, client, url, providerID, query, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", providerID, err)
	}
	return nil
}

var publishedLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// normalizePublishedAt renders parseable timestamps as RFC3339 UTC and keeps
// anything else verbatim.
func normalizePublishedAt(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return raw
}

// plainText strips markup that some APIs embed in descriptions.
func plainText(s string) string {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// newArticle trims fields and assigns the link-derived id. Empty links or
// titles yield ok=false.
func newArticle(title, summary, content, source, link, published string) (domain.Article, bool) {
	link = strings.TrimSpace(link)
	title = plainText(title)
	if link == "" || title == "" {
		return domain.Article{}, false
	}
	return domain.Article{
		ID:          domain.ArticleID(link),
		Title:       title,
		Summary:     plainText(summary),
		Content:     plainText(content),
		Source:      strings.TrimSpace(source),
		Link:        link,
		PublishedAt: normalizePublishedAt(published),
	}, true
}

func language(cfg Provider) string {
	return ConfigString(cfg, ConfigLanguageKey, "en")
}
