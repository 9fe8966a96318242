package web

import (
	"math"
	"sort"
	"strings"

	"github.com/samvad-hq/samvad-flashcards/internal/domain"
)

// Stats summarises a flashcard set for the dashboard.
type Stats struct {
	Total         int     `json:"total"`
	UniqueTopics  int     `json:"unique_topics"`
	AvgDifficulty float64 `json:"avg_difficulty"`
	Advanced      int     `json:"advanced"`
}

// ComputeStats counts cards, distinct topics and hard cards, and averages the
// difficulty index (easy=0, medium=1, hard=2) rounded to one decimal.
func ComputeStats(cards []domain.Flashcard) Stats {
	st := Stats{Total: len(cards)}
	if len(cards) == 0 {
		return st
	}

	topics := make(map[string]struct{}, len(cards))
	sum := 0
	for _, c := range cards {
		topics[c.Topic] = struct{}{}
		idx := domain.DifficultyIndex(c.Difficulty)
		if idx > 0 {
			sum += idx
		}
		if idx == len(domain.Difficulties)-1 {
			st.Advanced++
		}
	}
	st.UniqueTopics = len(topics)
	st.AvgDifficulty = math.Round(float64(sum)/float64(len(cards))*10) / 10
	return st
}

// FilterCards keeps cards whose difficulty is one of wanted. An empty wanted
// set keeps everything.
func FilterCards(cards []domain.Flashcard, wanted []string) []domain.Flashcard {
	set := make(map[string]struct{}, len(wanted))
	for _, w := range wanted {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			set[w] = struct{}{}
		}
	}
	out := make([]domain.Flashcard, 0, len(cards))
	for _, c := range cards {
		if len(set) > 0 {
			if _, ok := set[strings.ToLower(c.Difficulty)]; !ok {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// SortCards orders cards by difficulty, easy to hard unless desc is set.
// Cards of equal difficulty keep their relative order.
func SortCards(cards []domain.Flashcard, desc bool) {
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := domain.DifficultyIndex(cards[i].Difficulty), domain.DifficultyIndex(cards[j].Difficulty)
		if desc {
			return a > b
		}
		return a < b
	})
}

// difficultyParam splits "easy,hard" style query values.
func difficultyParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// exportFilename builds flashcards_<keyword>_<YYYYMMDD_HHMMSS>.json. Sessions
// without a keyword, such as one restored from disk, export as "all".
func exportFilename(keyword string, ts string) string {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		keyword = "all"
	}
	return "flashcards_" + strings.ReplaceAll(keyword, " ", "_") + "_" + ts + ".json"
}
