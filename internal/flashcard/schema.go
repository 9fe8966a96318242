package flashcard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/samvad-hq/samvad-flashcards/internal/domain"
)

// cardFields is the closed set of keys every flashcard must carry, in prompt order.
var cardFields = []string{
	"title",
	"question",
	"answer",
	"context",
	"the_company_mainly_concerned_with_the_news_article",
	"link",
	"source",
	"summary",
	"published_at",
	"difficulty",
	"topic",
}

// Schema is the JSON schema the model output is constrained to.
var Schema = buildSchema()

func buildSchema() json.RawMessage {
	props := make(map[string]any, len(cardFields))
	for _, f := range cardFields {
		props[f] = map[string]any{"type": "string"}
	}
	props["difficulty"] = map[string]any{"type": "string", "enum": domain.Difficulties}

	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"flashcards"},
		"properties": map[string]any{
			"flashcards": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             cardFields,
					"properties":           props,
				},
			},
		},
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("flashcard schema: %v", err))
	}
	return raw
}

// Output is the validated model answer.
type Output struct {
	Flashcards []domain.Flashcard `json:"flashcards"`
}

// ValidationError reports the first structural problem found in a model answer.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid flashcard output: " + e.Reason
	}
	return fmt.Sprintf("invalid flashcard output: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks raw against the flashcard schema: a single object holding a
// non-empty flashcards array whose items carry exactly the known string fields
// and a known difficulty. Difficulty is lower-cased on success.
func Validate(raw []byte) (Output, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Output{}, invalid("", "empty output")
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return Output{}, invalid("", "not a JSON object: %v", err)
	}
	for key := range top {
		if key != "flashcards" {
			return Output{}, invalid(key, "unexpected field")
		}
	}
	rawCards, ok := top["flashcards"]
	if !ok {
		return Output{}, invalid("flashcards", "missing")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(rawCards, &items); err != nil || items == nil {
		return Output{}, invalid("flashcards", "must be an array")
	}
	if len(items) == 0 {
		return Output{}, invalid("flashcards", "must not be empty")
	}

	out := Output{Flashcards: make([]domain.Flashcard, 0, len(items))}
	for i, item := range items {
		card, err := validateCard(fmt.Sprintf("flashcards[%d]", i), item)
		if err != nil {
			return Output{}, err
		}
		out.Flashcards = append(out.Flashcards, card)
	}
	return out, nil
}

func validateCard(path string, raw json.RawMessage) (domain.Flashcard, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return domain.Flashcard{}, invalid(path, "must be an object")
	}

	var extra []string
	for key := range fields {
		if !knownField(key) {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return domain.Flashcard{}, invalid(path+"."+extra[0], "unexpected field")
	}

	for _, f := range cardFields {
		v, ok := fields[f]
		if !ok {
			return domain.Flashcard{}, invalid(path+"."+f, "missing")
		}
		// null must not pass as an empty string
		v = bytes.TrimSpace(v)
		var s string
		if len(v) == 0 || v[0] != '"' {
			return domain.Flashcard{}, invalid(path+"."+f, "must be a string")
		}
		if err := json.Unmarshal(v, &s); err != nil {
			return domain.Flashcard{}, invalid(path+"."+f, "must be a string")
		}
	}

	var card domain.Flashcard
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&card); err != nil {
		return domain.Flashcard{}, invalid(path, "%v", err)
	}

	card.Difficulty = strings.ToLower(strings.TrimSpace(card.Difficulty))
	if domain.DifficultyIndex(card.Difficulty) < 0 {
		return domain.Flashcard{}, invalid(path+".difficulty", "must be one of %s", strings.Join(domain.Difficulties, ", "))
	}
	return card, nil
}

func knownField(key string) bool {
	for _, f := range cardFields {
		if f == key {
			return true
		}
	}
	return false
}
