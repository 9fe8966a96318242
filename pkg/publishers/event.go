package publishers

import (
	"time"

	"github.com/samvad-hq/samvad-flashcards/internal/domain"
)

// Event represents the payload published downstream: one article's flashcards.
type Event struct {
	RunID       string                `json:"run_id"`
	Keyword     string                `json:"keyword"`
	Batch       domain.FlashcardBatch `json:"batch"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// NewEvent constructs an Event for a generated batch.
func NewEvent(runID, keyword string, batch domain.FlashcardBatch) Event {
	return Event{
		RunID:       runID,
		Keyword:     keyword,
		Batch:       batch,
		GeneratedAt: time.Now().UTC(),
	}
}

// attributes are the routing attributes attached to queue/topic messages.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"run_id":  e.RunID,
		"keyword": e.Keyword,
		"source":  e.Batch.Source,
	}
}
