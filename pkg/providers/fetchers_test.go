package providers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/samvad-hq/samvad-flashcards/pkg/httpclient"
)

type mockResponse struct {
	body       []byte
	statusCode int
}

func (r mockResponse) Body() []byte    { return r.body }
func (r mockResponse) StatusCode() int { return r.statusCode }

// mockHTTPClient records the last request and returns a canned body.
type mockHTTPClient struct {
	status  int
	body    string
	err     error
	url     string
	query   map[string]string
	headers map[string]string
}

func (m *mockHTTPClient) Get(_ context.Context, url string, query, headers map[string]string) (httpclient.Response, error) {
	m.url, m.query, m.headers = url, query, headers
	if m.err != nil {
		return nil, m.err
	}
	status := m.status
	if status == 0 {
		status = 200
	}
	return mockResponse{body: []byte(m.body), statusCode: status}, nil
}

func keyed(typ string) Provider {
	return sanitizeProvider(Provider{
		ID:     typ + "-1",
		Type:   typ,
		Config: map[string]any{ConfigAPIKeyKey: "k"},
	})
}

func TestNewsDataFetcherFetchSuccess(t *testing.T) {
	client := &mockHTTPClient{body: `{"status":"success","results":[
  {"title":"Chip rally","link":"https://a.test/1","description":"<p>Stocks up</p>","content":"Full text","pubDate":"2025-01-02 03:04:05","source_id":"reuters"},
  {"title":"","link":"https://a.test/2"}
]}`}

	articles, err := NewNewsDataFetcher(client).Fetch(context.Background(), keyed(ProviderTypeNewsData), "chips")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if client.query["q"] != "chips" || client.query["apikey"] != "k" || client.query["language"] != "en" {
		t.Fatalf("unexpected query %#v", client.query)
	}
	if len(articles) != 1 {
		t.Fatalf("expected 1 article (empty title dropped), got %d", len(articles))
	}
	a := articles[0]
	if a.Summary != "Stocks up" || a.Source != "reuters" || a.PublishedAt != "2025-01-02T03:04:05Z" {
		t.Fatalf("unexpected article %+v", a)
	}
	if a.ID == "" {
		t.Fatalf("expected id derived from link")
	}
}

func TestNewsDataFetcherAPIError(t *testing.T) {
	client := &mockHTTPClient{body: `{"status":"error","results":{"message":"bad key","code":"Unauthorized"}}`}
	_, err := NewNewsDataFetcher(client).Fetch(context.Background(), keyed(ProviderTypeNewsData), "x")
	if err == nil || !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestNewsAPIFetcherUsesHeaderKeyAndSkipsRemoved(t *testing.T) {
	client := &mockHTTPClient{body: `{"status":"ok","articles":[
  {"source":{"name":"BBC"},"title":"Rates hold","description":"d","url":"https://b.test/1","publishedAt":"2025-02-01T10:00:00Z","content":"c"},
  {"source":{"name":"x"},"title":"[Removed]","url":"https://removed.test"}
]}`}

	articles, err := NewNewsAPIFetcher(client).Fetch(context.Background(), keyed(ProviderTypeNewsAPI), "rates")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if client.headers["X-Api-Key"] != "k" {
		t.Fatalf("expected api key header, got %#v", client.headers)
	}
	if len(articles) != 1 || articles[0].Source != "BBC" {
		t.Fatalf("unexpected articles %+v", articles)
	}
}

func TestNewsAPIFetcherStatusError(t *testing.T) {
	client := &mockHTTPClient{status: 401, body: `{"status":"error","code":"apiKeyInvalid"}`}
	_, err := NewNewsAPIFetcher(client).Fetch(context.Background(), keyed(ProviderTypeNewsAPI), "x")
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestGNewsFetcherFetch(t *testing.T) {
	client := &mockHTTPClient{body: `{"totalArticles":1,"articles":[
  {"title":"EV sales","description":"d","content":"c","url":"https://g.test/1","publishedAt":"2025-03-01T00:00:00Z","source":{"name":"Verge"}}
]}`}
	articles, err := NewGNewsFetcher(client).Fetch(context.Background(), keyed(ProviderTypeGNews), "ev")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if client.query["max"] != "10" || client.query["lang"] != "en" {
		t.Fatalf("unexpected query %#v", client.query)
	}
	if len(articles) != 1 || articles[0].Link != "https://g.test/1" {
		t.Fatalf("unexpected articles %+v", articles)
	}
}

func TestGNewsFetcherErrors(t *testing.T) {
	client := &mockHTTPClient{body: `{"errors":["quota exceeded"]}`}
	if _, err := NewGNewsFetcher(client).Fetch(context.Background(), keyed(ProviderTypeGNews), "x"); err == nil {
		t.Fatalf("expected api error")
	}
	if _, err := NewGNewsFetcher(client).Fetch(context.Background(), sanitizeProvider(Provider{ID: "g", Type: ProviderTypeGNews}), "x"); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestGoogleNewsFetcherParsesRSS(t *testing.T) {
	client := &mockHTTPClient{body: `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
  <item>
    <title>Fed cuts rates - Reuters</title>
    <link>https://news.google.com/articles/1</link>
    <pubDate>Mon, 06 Jan 2025 08:00:00 GMT</pubDate>
    <description>&lt;a href="x"&gt;Fed cuts rates&lt;/a&gt;</description>
    <source url="https://reuters.com">Reuters</source>
  </item>
</channel></rss>`}

	cfg := sanitizeProvider(Provider{ID: "gn", Name: "Google News", Type: ProviderTypeGoogleNewsRSS})
	articles, err := NewGoogleNewsFetcher(client).Fetch(context.Background(), cfg, "fed")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if client.query["ceid"] != "US:en" {
		t.Fatalf("unexpected ceid %q", client.query["ceid"])
	}
	if len(articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(articles))
	}
	a := articles[0]
	if a.Summary != "Fed cuts rates" || a.Source != "Reuters" || a.PublishedAt != "2025-01-06T08:00:00Z" {
		t.Fatalf("unexpected article %+v", a)
	}
}

func TestFetcherRejectsIncompatibleType(t *testing.T) {
	_, err := NewGNewsFetcher(&mockHTTPClient{}).Fetch(context.Background(), keyed(ProviderTypeNewsAPI), "x")
	if err == nil {
		t.Fatal("expected error for mismatched provider type")
	}
}

func TestFetchBodyTransportError(t *testing.T) {
	client := &mockHTTPClient{err: errors.New("dial")}
	if _, err := fetchBody(context.Background(), client, "u", "p", nil, nil); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestDefaultFetcherRegistryResolvesByType(t *testing.T) {
	reg := DefaultFetcherRegistry(&mockHTTPClient{})
	for _, typ := range []string{ProviderTypeNewsData, ProviderTypeNewsAPI, ProviderTypeGNews, ProviderTypeGoogleNewsRSS} {
		f, err := reg.FetcherFor(Provider{ID: "any-" + typ, Type: typ})
		if err != nil {
			t.Fatalf("FetcherFor(%s): %v", typ, err)
		}
		if f.ID() != typ {
			t.Fatalf("fetcher id %q want %q", f.ID(), typ)
		}
	}
	if _, err := reg.FetcherFor(Provider{ID: "x", Type: "unknown"}); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestNormalizePublishedAtKeepsUnparseable(t *testing.T) {
	if got := normalizePublishedAt("yesterday"); got != "yesterday" {
		t.Fatalf("normalizePublishedAt = %q", got)
	}
}

func TestResponseSnippetKeepsRunesWhole(t *testing.T) {
	// 511 ASCII bytes push the three-byte rune across the cut
	body := strings.Repeat("a", 511) + strings.Repeat("समाचार", 50)
	got := responseSnippet([]byte(body))
	if !utf8.ValidString(got) {
		t.Fatalf("snippet split a rune: %q", got[len(got)-8:])
	}
	if !strings.HasSuffix(got, "...") || len(got) > 512+len("...") {
		t.Fatalf("unexpected snippet length %d", len(got))
	}
	if !strings.HasPrefix(got, strings.Repeat("a", 511)) {
		t.Fatalf("expected ASCII prefix kept")
	}
}
