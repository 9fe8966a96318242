package providers

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRegistryYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "providers.yaml")
	content := `
providers:
  - id: newsapi
    name: NewsAPI
    type: newsapi
    request_delay_ms: 750
    config:
      api_key_env: NEWSAPI_KEY
  - id: rss
    type: google_news_rss
    enabled: false
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write providers file: %v", err)
	}

	reg, err := LoadRegistry(file)
	if err != nil {
		t.Fatalf("LoadRegistry returned error: %v", err)
	}
	if len(reg.All()) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(reg.All()))
	}
	enabled := reg.Enabled()
	if len(enabled) != 1 || enabled[0].ID != "newsapi" {
		t.Fatalf("expected only newsapi enabled, got %#v", enabled)
	}

	p, ok := reg.ByID("newsapi")
	if !ok {
		t.Fatalf("expected provider id newsapi to be loaded")
	}
	if p.SourceURL != "https://newsapi.org/v2/everything" {
		t.Fatalf("expected default source_url, got %s", p.SourceURL)
	}
	if p.RequestDelay() != 750*time.Millisecond {
		t.Fatalf("unexpected request delay: %v", p.RequestDelay())
	}
	rss, _ := reg.ByID("rss")
	if rss.Name != "rss" {
		t.Fatalf("expected name to default to id, got %q", rss.Name)
	}
}

func TestLoadRegistryDuplicateID(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "providers.json")
	content := `{"providers":[
  {"id":"dup","type":"gnews"},
  {"id":"dup","type":"newsapi"}
]}`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write providers file: %v", err)
	}

	if _, err := LoadRegistry(file); err == nil {
		t.Fatalf("expected duplicate provider error, got nil")
	}
}

func TestNewRegistryRejectsUnknownTypeWithoutURL(t *testing.T) {
	_, err := NewRegistry([]Provider{{ID: "x", Type: "custom"}})
	if err == nil {
		t.Fatalf("expected source_url error for custom type")
	}
}

func TestAPIKeyResolution(t *testing.T) {
	t.Setenv("TEST_NEWS_KEY", "from-env")

	key, err := APIKey(Provider{ID: "a", Config: map[string]any{ConfigAPIKeyKey: " inline "}})
	if err != nil || key != "inline" {
		t.Fatalf("inline key = %q err=%v", key, err)
	}
	key, err = APIKey(Provider{ID: "b", Config: map[string]any{ConfigAPIKeyEnvKey: "TEST_NEWS_KEY"}})
	if err != nil || key != "from-env" {
		t.Fatalf("env key = %q err=%v", key, err)
	}
	if _, err := APIKey(Provider{ID: "c"}); err == nil {
		t.Fatalf("expected error when no key configured")
	}
}

func TestConfigInt(t *testing.T) {
	p := Provider{Config: map[string]any{"a": 5, "b": 7.0, "c": "9", "d": "x", "e": -1}}
	cases := map[string]int{"a": 5, "b": 7, "c": 9, "d": 3, "e": 3, "missing": 3}
	for key, want := range cases {
		if got := ConfigInt(p, key, 3); got != want {
			t.Errorf("ConfigInt(%s) = %d want %d", key, got, want)
		}
	}
}
