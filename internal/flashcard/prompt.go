package flashcard

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samvad-hq/samvad-flashcards/internal/domain"
)

const promptTemplate = `You are a flashcard generator for news-based learning.

Convert this news article into educational flashcards.
Each flashcard must include exactly these fields:
%s

Set difficulty to one of: %s.
Set topic to a short subject label (for example "semiconductors" or "monetary policy").
Use only information from the article. Do not add facts that are not in it.

ARTICLE:
%s
`

// BuildPrompt renders the generation prompt for article.
func BuildPrompt(article domain.Article) (string, error) {
	payload, err := json.MarshalIndent(article.Payload(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode article payload: %w", err)
	}

	fields := make([]string, len(cardFields))
	for i, f := range cardFields {
		fields[i] = "    " + f
	}

	return fmt.Sprintf(promptTemplate,
		strings.Join(fields, "\n"),
		strings.Join(domain.Difficulties, ", "),
		payload,
	), nil
}
