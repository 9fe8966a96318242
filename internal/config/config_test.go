package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ResultsPath != "resultsgen.json" || cfg.FlashcardsPath != "flashcards.json" {
		t.Fatalf("unexpected paths %q %q", cfg.ResultsPath, cfg.FlashcardsPath)
	}
	if cfg.DedupTopK != 2 {
		t.Fatalf("expected top-k 2, got %d", cfg.DedupTopK)
	}
	if cfg.LLMModel != "mistral" {
		t.Fatalf("expected default model mistral, got %q", cfg.LLMModel)
	}
	if cfg.IndexCleanupInterval != 12*time.Hour {
		t.Fatalf("unexpected cleanup interval %v", cfg.IndexCleanupInterval)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DEDUP_THRESHOLD", "0.8")
	t.Setenv("LLM_MODEL", "llama3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DedupThreshold != 0.8 {
		t.Fatalf("expected threshold from env, got %v", cfg.DedupThreshold)
	}
	if cfg.LLMModel != "llama3" {
		t.Fatalf("expected model from env, got %q", cfg.LLMModel)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flashcards.yaml")
	content := `
index_type: sqlite
index_dir: /tmp/idx
dedup_top_k: 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IndexType != "sqlite" || cfg.IndexDir != "/tmp/idx" || cfg.DedupTopK != 5 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalidThreshold(t *testing.T) {
	t.Setenv("DEDUP_THRESHOLD", "1.5")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for threshold above 1")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
