package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samvad-hq/samvad-flashcards/internal/domain"
)

var (
	// ErrInputMissing is returned when the intermediate article file does not exist.
	ErrInputMissing = errors.New("input file missing")
	// ErrInputNotList is returned when the intermediate article file is not a JSON array.
	ErrInputNotList = errors.New("input file is not a JSON list")
)

// writeJSONAtomic encodes v into a temp file next to path, syncs it and
// renames it over path, so readers never observe a partial file.
func writeJSONAtomic(path string, v any, indent string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// ReadArticles loads the intermediate article list.
func ReadArticles(path string) ([]domain.Article, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputMissing, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: %s", ErrInputNotList, path)
	}

	var articles []domain.Article
	if err := json.Unmarshal(trimmed, &articles); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInputNotList, path, err)
	}
	for i := range articles {
		articles[i].ID = domain.ArticleID(articles[i].Link)
		articles[i].Embedding = nil
	}
	return articles, nil
}

// ReadBatches loads a flashcards file written by Generate.
func ReadBatches(path string) ([]domain.FlashcardBatch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputMissing, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var batches []domain.FlashcardBatch
	if err := json.Unmarshal(raw, &batches); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return batches, nil
}
