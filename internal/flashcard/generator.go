package flashcard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samvad-hq/samvad-flashcards/internal/domain"
	"github.com/samvad-hq/samvad-flashcards/internal/logger"
)

// ErrNoModel is returned by a Generator built without a model.
var ErrNoModel = errors.New("flashcard generator has no model")

// StructuredModel produces output constrained to a JSON schema.
type StructuredModel interface {
	Generate(ctx context.Context, prompt string, schema json.RawMessage) ([]byte, error)
}

// Options customizes a Generator.
type Options struct {
	Log logger.Logger
}

// Generator turns one article into a validated flashcard batch.
type Generator struct {
	model StructuredModel
	log   logger.Logger
}

// NewGenerator wires a generator around model.
func NewGenerator(model StructuredModel, opts Options) *Generator {
	return &Generator{model: model, log: logger.Ensure(opts.Log)}
}

// Generate asks the model for flashcards about article and validates the
// answer. Every card's link, source and published_at are replaced with the
// article's values so each card traces back to its article.
func (g *Generator) Generate(ctx context.Context, article domain.Article) (domain.FlashcardBatch, error) {
	if g == nil || g.model == nil {
		return domain.FlashcardBatch{}, ErrNoModel
	}

	prompt, err := BuildPrompt(article)
	if err != nil {
		return domain.FlashcardBatch{}, err
	}

	raw, err := g.model.Generate(ctx, prompt, Schema)
	if err != nil {
		return domain.FlashcardBatch{}, fmt.Errorf("generate flashcards for %q: %w", article.Title, err)
	}

	out, err := Validate(raw)
	if err != nil {
		g.log.DebugObj("flashcard output rejected", "model_output", map[string]any{
			"title":  article.Title,
			"output": string(raw),
		})
		return domain.FlashcardBatch{}, fmt.Errorf("validate flashcards for %q: %w", article.Title, err)
	}

	for i := range out.Flashcards {
		out.Flashcards[i].Link = article.Link
		out.Flashcards[i].Source = article.Source
		out.Flashcards[i].PublishedAt = article.PublishedAt
	}

	return domain.FlashcardBatch{
		Title:       article.Title,
		Link:        article.Link,
		Source:      article.Source,
		PublishedAt: article.PublishedAt,
		Flashcards:  out.Flashcards,
	}, nil
}
