package domain

import (
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"strings"
)

// Domain contains core models shared by the fetch, filter and generation stages.

// Article is one retrieved news item, normalized across providers.
type Article struct {
	ID          string    `json:"-"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	Link        string    `json:"link"`
	PublishedAt string    `json:"published_at"`
	Score       float64   `json:"score,omitempty"`
	Embedding   []float64 `json:"embedding,omitempty"`
}

// ArticleID derives a stable identifier from an article link.
func ArticleID(link string) string {
	sum := sha1.Sum([]byte(strings.TrimSpace(link)))
	return hex.EncodeToString(sum[:])
}

// Persistable returns a copy without the transient embedding vector.
func (a Article) Persistable() Article {
	a.Embedding = nil
	return a
}

// Text returns the best available body for embedding: content, then summary, then title.
func (a Article) Text() string {
	for _, s := range []string{a.Content, a.Summary, a.Title} {
		if t := strings.TrimSpace(s); t != "" {
			return t
		}
	}
	return ""
}

// Payload is the subset of an article handed to the flashcard model.
type Payload struct {
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	PublishedAt string `json:"published_at"`
	Source      string `json:"source"`
}

// Payload builds the generation payload for the article.
func (a Article) Payload() Payload {
	return Payload{
		Title:       a.Title,
		Summary:     a.Summary,
		PublishedAt: a.PublishedAt,
		Source:      a.Source,
	}
}

// Difficulty levels in ascending order.
var Difficulties = []string{"easy", "medium", "hard"}

// DifficultyIndex returns the position of d in Difficulties, or -1.
func DifficultyIndex(d string) int {
	d = strings.ToLower(strings.TrimSpace(d))
	for i, v := range Difficulties {
		if v == d {
			return i
		}
	}
	return -1
}

// Flashcard is one generated study unit.
type Flashcard struct {
	Title       string `json:"title"`
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	Context     string `json:"context"`
	Company     string `json:"the_company_mainly_concerned_with_the_news_article"`
	Link        string `json:"link"`
	Source      string `json:"source"`
	Summary     string `json:"summary"`
	PublishedAt string `json:"published_at"`
	Difficulty  string `json:"difficulty"`
	Topic       string `json:"topic"`
}

// FlashcardBatch holds the flashcards produced for a single article, tagged
// with that article's metadata.
type FlashcardBatch struct {
	Title       string      `json:"title"`
	Link        string      `json:"link"`
	Source      string      `json:"source"`
	PublishedAt string      `json:"published_at"`
	Flashcards  []Flashcard `json:"flashcards"`
}

// Flatten concatenates the flashcards of all batches in order.
func Flatten(batches []FlashcardBatch) []Flashcard {
	n := 0
	for _, b := range batches {
		n += len(b.Flashcards)
	}
	out := make([]Flashcard, 0, n)
	for _, b := range batches {
		out = append(out, b.Flashcards...)
	}
	return out
}
