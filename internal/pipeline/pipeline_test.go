package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/samvad-hq/samvad-flashcards/internal/domain"
	"github.com/samvad-hq/samvad-flashcards/internal/retriever"
	"github.com/samvad-hq/samvad-flashcards/internal/storage"
	"github.com/samvad-hq/samvad-flashcards/pkg/providers"
	"github.com/samvad-hq/samvad-flashcards/pkg/publishers"
)

type stubAggregator struct {
	articles []domain.Article
	err      error
}

func (s stubAggregator) Collect(context.Context, []providers.Provider, string) ([]domain.Article, error) {
	return s.articles, s.err
}

type passFilter struct{ err error }

func (p passFilter) Filter(_ context.Context, _ string, in []domain.Article) ([]domain.Article, error) {
	if p.err != nil {
		return nil, p.err
	}
	return in, nil
}

// stubGenerator fails for titles listed in failOn and returns one card otherwise.
type stubGenerator struct {
	failOn map[string]bool
	calls  int
}

func (s *stubGenerator) Generate(_ context.Context, a domain.Article) (domain.FlashcardBatch, error) {
	s.calls++
	if s.failOn[a.Title] {
		return domain.FlashcardBatch{}, errors.New("model returned invalid JSON")
	}
	return domain.FlashcardBatch{
		Title:       a.Title,
		Link:        a.Link,
		Source:      a.Source,
		PublishedAt: a.PublishedAt,
		Flashcards: []domain.Flashcard{{
			Title:       a.Title,
			Question:    "What happened in " + a.Title + "?",
			Answer:      a.Summary,
			Context:     "<b>context</b> & more",
			Company:     "Acme",
			Link:        a.Link,
			Source:      a.Source,
			Summary:     a.Summary,
			PublishedAt: a.PublishedAt,
			Difficulty:  "medium",
			Topic:       "Markets",
		}},
	}, nil
}

type recordingPublisher struct {
	events []publishers.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, evt publishers.Event) (int, error) {
	r.events = append(r.events, evt)
	if r.err != nil {
		return 0, r.err
	}
	return 1, nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		ResultsPath:    filepath.Join(dir, "resultsgen.json"),
		FlashcardsPath: filepath.Join(dir, "flashcards.json"),
	}
}

func writeInput(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
}

func sampleArticles(titles ...string) []domain.Article {
	out := make([]domain.Article, 0, len(titles))
	for _, title := range titles {
		out = append(out, domain.Article{
			Title:       title,
			Summary:     "Summary of " + title,
			Source:      "Wire",
			Link:        "https://news.test/" + strings.ReplaceAll(title, " ", "-"),
			PublishedAt: "2024-05-01T10:00:00Z",
		})
	}
	return out
}

func TestGenerateSingleArticle(t *testing.T) {
	cfg := testConfig(t)
	writeInput(t, cfg.ResultsPath, `[{"title":"A","summary":"S1","content":"","source":"X","link":"L","published_at":"P"}]`)
	gen := &stubGenerator{}

	report, err := New(cfg, nil, nil, gen).Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if report.Total != 1 || report.Succeeded != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	batches, err := ReadBatches(cfg.FlashcardsPath)
	if err != nil {
		t.Fatalf("ReadBatches: %v", err)
	}
	if len(batches) != 1 || batches[0].Title != "A" || len(batches[0].Flashcards) != 1 {
		t.Fatalf("unexpected batches %+v", batches)
	}
	if batches[0].Link != "L" || batches[0].Source != "X" || batches[0].PublishedAt != "P" {
		t.Fatalf("batch metadata not carried from article: %+v", batches[0])
	}
}

func TestGenerateSkipsFailedArticles(t *testing.T) {
	cfg := testConfig(t)
	raw, _ := json.Marshal(sampleArticles("one", "two", "three", "four"))
	writeInput(t, cfg.ResultsPath, string(raw))
	gen := &stubGenerator{failOn: map[string]bool{"two": true, "four": true}}

	report, err := New(cfg, nil, nil, gen).Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.calls != 4 {
		t.Fatalf("expected every article attempted, got %d calls", gen.calls)
	}
	if report.Succeeded+report.Failed != report.Total || report.Failed != 2 {
		t.Fatalf("unexpected report counts %+v", report)
	}

	batches, err := ReadBatches(cfg.FlashcardsPath)
	if err != nil {
		t.Fatalf("ReadBatches: %v", err)
	}
	if len(batches) != 2 || batches[0].Title != "one" || batches[1].Title != "three" {
		t.Fatalf("expected batches for one and three in order, got %+v", batches)
	}
	if !reflect.DeepEqual(batches, report.Batches()) {
		t.Fatalf("persisted batches differ from report batches")
	}
	for _, o := range report.Outcomes {
		if (o.Title == "two" || o.Title == "four") == o.OK() {
			t.Fatalf("unexpected outcome for %q: %v", o.Title, o.Err)
		}
	}
}

func TestGenerateAllFailedWritesEmptyList(t *testing.T) {
	cfg := testConfig(t)
	raw, _ := json.Marshal(sampleArticles("one"))
	writeInput(t, cfg.ResultsPath, string(raw))

	if _, err := New(cfg, nil, nil, &stubGenerator{failOn: map[string]bool{"one": true}}).Generate(context.Background(), nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	data, err := os.ReadFile(cfg.FlashcardsPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("expected empty JSON list, got %s", data)
	}
}

func TestGenerateMissingInput(t *testing.T) {
	cfg := testConfig(t)
	gen := &stubGenerator{}

	_, err := New(cfg, nil, nil, gen).Generate(context.Background(), nil)
	if !errors.Is(err, ErrInputMissing) {
		t.Fatalf("expected ErrInputMissing, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not be called, got %d calls", gen.calls)
	}
	if _, err := os.Stat(cfg.FlashcardsPath); !os.IsNotExist(err) {
		t.Fatalf("expected no output file, stat err %v", err)
	}
}

func TestGenerateRejectsNonList(t *testing.T) {
	cfg := testConfig(t)
	writeInput(t, cfg.ResultsPath, `{"title":"A"}`)
	gen := &stubGenerator{}

	_, err := New(cfg, nil, nil, gen).Generate(context.Background(), nil)
	if !errors.Is(err, ErrInputNotList) {
		t.Fatalf("expected ErrInputNotList, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not be called, got %d calls", gen.calls)
	}
}

func TestGenerateDoesNotEscapeHTML(t *testing.T) {
	cfg := testConfig(t)
	raw, _ := json.Marshal(sampleArticles("one"))
	writeInput(t, cfg.ResultsPath, string(raw))

	if _, err := New(cfg, nil, nil, &stubGenerator{}).Generate(context.Background(), nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	data, err := os.ReadFile(cfg.FlashcardsPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "<b>context</b> & more") {
		t.Fatalf("expected raw characters in output, got %s", data)
	}
}

func TestGenerateStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	raw, _ := json.Marshal(sampleArticles("one", "two"))
	writeInput(t, cfg.ResultsPath, string(raw))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := New(cfg, nil, nil, &stubGenerator{}).Generate(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report.Total != 2 || len(report.Outcomes) != 0 {
		t.Fatalf("unexpected partial report %+v", report)
	}
	batches, err := ReadBatches(cfg.FlashcardsPath)
	if err != nil || len(batches) != 0 {
		t.Fatalf("expected empty flashcards file, got %v %v", batches, err)
	}
}

// cancellingGenerator cancels the run while producing its first batch.
type cancellingGenerator struct {
	stubGenerator
	cancel context.CancelFunc
}

func (c *cancellingGenerator) Generate(ctx context.Context, a domain.Article) (domain.FlashcardBatch, error) {
	if c.calls == 0 {
		c.cancel()
	}
	return c.stubGenerator.Generate(ctx, a)
}

func TestRunCancelledMidGenerationKeepsFinishedBatches(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &cancellingGenerator{cancel: cancel}
	pub := &recordingPublisher{}
	p := New(cfg, stubAggregator{articles: sampleArticles("one", "two")}, passFilter{}, gen, WithPublisher(pub))

	session, err := p.Run(ctx, "chips", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected generation to stop after the first article, got %d calls", gen.calls)
	}
	if len(session.Batches) != 1 || session.Batches[0].Title != "one" {
		t.Fatalf("expected the finished batch in the session, got %+v", session.Batches)
	}
	if session.Report.Total != 2 || session.Report.Succeeded != 1 {
		t.Fatalf("unexpected report %+v", session.Report)
	}

	batches, err := ReadBatches(cfg.FlashcardsPath)
	if err != nil || len(batches) != 1 || batches[0].Title != "one" {
		t.Fatalf("expected finished batch persisted, got %v %v", batches, err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected finished batch published, got %d events", len(pub.events))
	}

	// the persisted article list still covers the whole run
	report, err := New(cfg, nil, nil, &stubGenerator{}).Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if report.Succeeded != 2 {
		t.Fatalf("expected both articles regenerated, got %+v", report)
	}
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	arts := sampleArticles("Chipmaker beats estimates", "Chipmaker beats estimate", "Weather turns cold")
	embedder := &vectorEmbedder{vectors: map[string][]float64{
		"chips":                                {1, 0, 0},
		"Summary of Chipmaker beats estimates": {0.9, 0.1, 0},
		"Summary of Chipmaker beats estimate":  {0.9, 0.11, 0},
		"Summary of Weather turns cold":        {0.2, 0, 1},
	}}
	filter := retriever.New(embedder, storage.NewMemoryIndex(storage.Options{}), retriever.Options{}, nil)
	gen := &stubGenerator{}
	pub := &recordingPublisher{}

	var progress []Progress
	p := New(cfg, stubAggregator{articles: arts}, filter, gen, WithPublisher(pub))
	p.newRunID = func() string { return "run-1" }

	session, err := p.Run(context.Background(), "chips", func(pr Progress) { progress = append(progress, pr) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(session.Articles) != 2 || len(session.Batches) != 2 {
		t.Fatalf("expected near-duplicate dropped, got %d articles %d batches", len(session.Articles), len(session.Batches))
	}
	if session.Batches[1].Title != "Weather turns cold" {
		t.Fatalf("unexpected batch order %+v", session.Batches)
	}
	if got := len(session.Flashcards()); got != 2 {
		t.Fatalf("expected 2 flashcards, got %d", got)
	}

	raw, err := os.ReadFile(cfg.ResultsPath)
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	if strings.Contains(string(raw), "embedding") {
		t.Fatalf("persisted articles must not carry embeddings: %s", raw)
	}

	if len(pub.events) != 2 || pub.events[0].RunID != "run-1" || pub.events[0].Keyword != "chips" {
		t.Fatalf("unexpected published events %+v", pub.events)
	}

	if len(progress) == 0 || progress[len(progress)-1].Percent != 100 || progress[len(progress)-1].Stage != StageDone {
		t.Fatalf("expected progress to finish at 100, got %+v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i].Percent < progress[i-1].Percent {
			t.Fatalf("progress went backwards: %+v", progress)
		}
	}
}

func TestRunFilterFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	gen := &stubGenerator{}
	p := New(cfg, stubAggregator{articles: sampleArticles("one")}, passFilter{err: retriever.ErrBackendUnavailable}, gen)

	_, err := p.Run(context.Background(), "chips", nil)
	if !errors.Is(err, retriever.ErrBackendUnavailable) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not be called, got %d calls", gen.calls)
	}
	for _, path := range []string{cfg.ResultsPath, cfg.FlashcardsPath} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s not written, stat err %v", path, err)
		}
	}
}

func TestRunFetchFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	gen := &stubGenerator{}
	p := New(cfg, stubAggregator{err: errors.New("all providers failed")}, passFilter{}, gen)

	if _, err := p.Run(context.Background(), "chips", nil); err == nil {
		t.Fatalf("expected fetch error")
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not be called, got %d calls", gen.calls)
	}
}

func TestRunPublishErrorsAreNotFatal(t *testing.T) {
	cfg := testConfig(t)
	pub := &recordingPublisher{err: errors.New("queue unavailable")}
	p := New(cfg, stubAggregator{articles: sampleArticles("one")}, passFilter{}, &stubGenerator{}, WithPublisher(pub))

	session, err := p.Run(context.Background(), "chips", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(session.Batches) != 1 || len(pub.events) != 1 {
		t.Fatalf("expected one batch published, got %d batches %d events", len(session.Batches), len(pub.events))
	}
}

func TestRunNoArticles(t *testing.T) {
	cfg := testConfig(t)
	gen := &stubGenerator{}
	session, err := New(cfg, stubAggregator{}, passFilter{}, gen).Run(context.Background(), "chips", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(session.Batches) != 0 || gen.calls != 0 {
		t.Fatalf("expected empty session, got %+v", session)
	}
	batches, err := ReadBatches(cfg.FlashcardsPath)
	if err != nil || len(batches) != 0 {
		t.Fatalf("expected empty flashcards file, got %v %v", batches, err)
	}
}

type vectorEmbedder struct {
	vectors map[string][]float64
}

func (v *vectorEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if vec, ok := v.vectors[text]; ok {
		return vec, nil
	}
	return []float64{0, 1, 0}, nil
}
