package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samvad-hq/samvad-flashcards/internal/domain"
	"github.com/samvad-hq/samvad-flashcards/internal/logger"
	"github.com/samvad-hq/samvad-flashcards/pkg/providers"
	"github.com/samvad-hq/samvad-flashcards/pkg/publishers"
)

// Aggregator collects keyword search results from news providers.
type Aggregator interface {
	Collect(ctx context.Context, cfgs []providers.Provider, keyword string) ([]domain.Article, error)
}

// Filter keeps relevant, previously unseen articles.
type Filter interface {
	Filter(ctx context.Context, keyword string, articles []domain.Article) ([]domain.Article, error)
}

// Generator produces the flashcards for one article.
type Generator interface {
	Generate(ctx context.Context, article domain.Article) (domain.FlashcardBatch, error)
}

// Publisher delivers generated batches downstream. *publishers.Fanout satisfies it.
type Publisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Config holds the file locations and provider set of a pipeline.
type Config struct {
	Providers      []providers.Provider
	ResultsPath    string
	FlashcardsPath string
}

// Pipeline runs fetch, filter, persist and generate for a keyword.
type Pipeline struct {
	cfg       Config
	agg       Aggregator
	filter    Filter
	gen       Generator
	publisher Publisher
	log       logger.Logger
	newRunID  func() string
	now       func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithPublisher fans each generated batch out to downstream sinks.
func WithPublisher(p Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithLogger sets the pipeline logger.
func WithLogger(log logger.Logger) Option {
	return func(pl *Pipeline) { pl.log = logger.Ensure(log) }
}

// New wires a pipeline from its stages.
func New(cfg Config, agg Aggregator, filter Filter, gen Generator, opts ...Option) *Pipeline {
	if cfg.ResultsPath == "" {
		cfg.ResultsPath = "resultsgen.json"
	}
	if cfg.FlashcardsPath == "" {
		cfg.FlashcardsPath = "flashcards.json"
	}
	p := &Pipeline{
		cfg:      cfg,
		agg:      agg,
		filter:   filter,
		gen:      gen,
		log:      logger.NopLogger{},
		newRunID: uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Outcome is the per-article result of a generation pass: either a batch or
// the reason none was produced.
type Outcome struct {
	Index int                   `json:"index"`
	Title string                `json:"title"`
	Batch domain.FlashcardBatch `json:"-"`
	Err   error                 `json:"-"`
}

// OK reports whether the article produced a batch.
func (o Outcome) OK() bool { return o.Err == nil }

// Report summarises a generation pass.
type Report struct {
	RunID      string    `json:"run_id"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"-"`
	OutputPath string    `json:"output_path"`
}

// Batches returns the successful batches in article order.
func (r Report) Batches() []domain.FlashcardBatch {
	out := make([]domain.FlashcardBatch, 0, r.Succeeded)
	for _, o := range r.Outcomes {
		if o.OK() {
			out = append(out, o.Batch)
		}
	}
	return out
}

// Session is the caller-owned result of a keyword run.
type Session struct {
	RunID       string                  `json:"run_id"`
	Keyword     string                  `json:"keyword"`
	Articles    []domain.Article        `json:"articles"`
	Batches     []domain.FlashcardBatch `json:"batches"`
	Report      Report                  `json:"report"`
	CompletedAt time.Time               `json:"completed_at"`
}

// Flashcards returns every flashcard of the session in article order.
func (s Session) Flashcards() []domain.Flashcard {
	return domain.Flatten(s.Batches)
}

// Run executes the whole pipeline for keyword. Fetch or filter failures abort
// before any generation starts; per-article generation failures are recorded
// in the report.
func (p *Pipeline) Run(ctx context.Context, keyword string, observe Observer) (Session, error) {
	runID := p.newRunID()
	start := p.now()

	observe.emit(Progress{Stage: StageFetch, Percent: 20, Message: fmt.Sprintf("Fetching news for %q", keyword)})
	articles, err := p.agg.Collect(ctx, p.cfg.Providers, keyword)
	if err != nil {
		return Session{}, fmt.Errorf("fetch articles: %w", err)
	}

	observe.emit(Progress{Stage: StageFilter, Percent: 40, Message: fmt.Sprintf("Filtering %d articles", len(articles))})
	relevant, err := p.filter.Filter(ctx, keyword, articles)
	if err != nil {
		return Session{}, fmt.Errorf("filter articles: %w", err)
	}

	stripped := make([]domain.Article, len(relevant))
	for i, a := range relevant {
		stripped[i] = a.Persistable()
	}
	if err := writeJSONAtomic(p.cfg.ResultsPath, stripped, "  "); err != nil {
		return Session{}, fmt.Errorf("persist articles: %w", err)
	}
	p.log.InfoObj("articles persisted", "articles_meta", map[string]any{
		"run_id":     runID,
		"keyword":    keyword,
		"fetched":    len(articles),
		"relevant":   len(relevant),
		"path":       p.cfg.ResultsPath,
		"elapsed_ms": p.now().Sub(start).Milliseconds(),
	})

	report, err := p.generate(ctx, runID, keyword, observe)
	if err != nil && report.RunID == "" {
		return Session{}, err
	}

	// an interrupted run still hands back the batches it persisted
	return Session{
		RunID:       runID,
		Keyword:     keyword,
		Articles:    stripped,
		Batches:     report.Batches(),
		Report:      report,
		CompletedAt: p.now().UTC(),
	}, err
}

// Generate reads the persisted article list and produces flashcards for each
// article, one at a time. When ctx is cancelled between articles the batches
// produced so far are still written and the partial report is returned along
// with the cancellation error.
func (p *Pipeline) Generate(ctx context.Context, observe Observer) (Report, error) {
	return p.generate(ctx, p.newRunID(), "", observe)
}

func (p *Pipeline) generate(ctx context.Context, runID, keyword string, observe Observer) (Report, error) {
	articles, err := ReadArticles(p.cfg.ResultsPath)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		RunID:      runID,
		Total:      len(articles),
		Outcomes:   make([]Outcome, 0, len(articles)),
		OutputPath: p.cfg.FlashcardsPath,
	}

	var interrupted error
	for i, art := range articles {
		if err := ctx.Err(); err != nil {
			interrupted = fmt.Errorf("generation interrupted after %d of %d articles: %w", i, len(articles), err)
			break
		}
		observe.emit(Progress{
			Stage:   StageGenerate,
			Percent: 60 + 20*i/len(articles),
			Message: fmt.Sprintf("Generating flashcards %d/%d", i+1, len(articles)),
		})

		batch, err := p.gen.Generate(ctx, art)
		outcome := Outcome{Index: i, Title: art.Title, Batch: batch, Err: err}
		if err != nil {
			outcome.Batch = domain.FlashcardBatch{}
			report.Failed++
			p.log.ErrorObj("flashcard generation failed", "article_error", map[string]any{
				"run_id": runID,
				"title":  art.Title,
				"error":  err.Error(),
			})
		} else {
			report.Succeeded++
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	batches := report.Batches()
	observe.emit(Progress{Stage: StageGenerate, Percent: 80, Message: "Saving flashcards"})
	if err := writeJSONAtomic(p.cfg.FlashcardsPath, batches, "    "); err != nil {
		return Report{}, fmt.Errorf("persist flashcards: %w", err)
	}

	p.publish(context.WithoutCancel(ctx), runID, keyword, batches)

	if interrupted != nil {
		p.log.WarnObj("flashcard generation interrupted", "generation_report", report)
		return report, interrupted
	}

	p.log.InfoObj("flashcard generation completed", "generation_report", report)
	observe.emit(Progress{
		Stage:   StageDone,
		Percent: 100,
		Message: fmt.Sprintf("Generated flashcards for %d of %d articles", report.Succeeded, report.Total),
	})
	return report, nil
}

func (p *Pipeline) publish(ctx context.Context, runID, keyword string, batches []domain.FlashcardBatch) {
	if p.publisher == nil {
		return
	}
	for _, b := range batches {
		delivered, err := p.publisher.Publish(ctx, publishers.NewEvent(runID, keyword, b))
		if err != nil {
			p.log.WarnObj("flashcard publish failed", "publish_error", map[string]any{
				"run_id":    runID,
				"title":     b.Title,
				"delivered": delivered,
				"error":     err.Error(),
			})
		}
	}
}
