package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-flashcards/internal/config"
	"github.com/samvad-hq/samvad-flashcards/internal/crawler"
	"github.com/samvad-hq/samvad-flashcards/internal/flashcard"
	"github.com/samvad-hq/samvad-flashcards/internal/logger"
	"github.com/samvad-hq/samvad-flashcards/internal/pipeline"
	"github.com/samvad-hq/samvad-flashcards/internal/retriever"
	"github.com/samvad-hq/samvad-flashcards/internal/storage"
	"github.com/samvad-hq/samvad-flashcards/internal/web"
	"github.com/samvad-hq/samvad-flashcards/pkg/httpclient"
	"github.com/samvad-hq/samvad-flashcards/pkg/llm"
	"github.com/samvad-hq/samvad-flashcards/pkg/providers"
	"github.com/samvad-hq/samvad-flashcards/pkg/publishers"
)

const heartbeatTimeout = 10 * time.Second

// App is the flashcards runtime. It owns the vector index, the LLM client and
// the optional publishers, and exposes the search, generate and serve flows.
type App struct {
	cfg         *config.Config
	log         logger.Logger
	providerReg *providers.Registry
	index       storage.Index
	fanout      *publishers.Fanout
	retriever   *retriever.ArticleRetriever
	pipeline    *pipeline.Pipeline
}

// New builds the runtime from config. The LLM backend must answer a heartbeat.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	providerReg, err := providers.LoadRegistry(cfg.ProvidersFile)
	if err != nil {
		return nil, fmt.Errorf("load providers registry: %w", err)
	}
	enabled := providerReg.Enabled()
	providerIDs := make([]string, 0, len(enabled))
	for _, p := range enabled {
		providerIDs = append(providerIDs, p.ID)
	}
	log.InfoObj("providers registry loaded", "providers_meta", map[string]any{
		"count": len(providerIDs),
		"ids":   providerIDs,
	})

	model, err := llm.New(llm.Config{
		Host:           cfg.OllamaHost,
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Timeout:        cfg.LLMTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init llm client: %w", err)
	}
	hbCtx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
	err = model.Heartbeat(hbCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("llm backend unreachable: %w", err)
	}

	fanout, err := buildFanout(ctx, cfg.PublishersFile, log)
	if err != nil {
		return nil, err
	}

	index, err := storage.NewIndex(cfg.IndexType, cfg.IndexDir, storage.Options{
		Collection:      cfg.IndexCollection,
		TTL:             cfg.IndexTTL,
		CleanupInterval: cfg.IndexCleanupInterval,
	})
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init index: %w", err)
	}
	log.InfoObj("index initialized", "index_config", map[string]any{
		"type":                     cfg.IndexType,
		"dir":                      cfg.IndexDir,
		"collection":               cfg.IndexCollection,
		"ttl_seconds":              int(cfg.IndexTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.IndexCleanupInterval.Seconds()),
	})

	client := httpclient.NewRestyClient(cfg.HTTPTimeout)
	crawlOpts := []crawler.Option{crawler.WithLogger(log)}
	if cfg.EnrichMetadata {
		crawlOpts = append(crawlOpts, crawler.WithScraper(crawler.NewScraper(client, log)))
	}
	crawlService := crawler.NewService(providers.DefaultFetcherRegistry(client), crawlOpts...)

	ret := retriever.New(model, index, retriever.Options{
		TopK:               cfg.DedupTopK,
		DuplicateThreshold: cfg.DedupThreshold,
		MinRelevance:       cfg.MinRelevance,
		Collection:         cfg.IndexCollection,
	}, log)

	gen := flashcard.NewGenerator(model, flashcard.Options{Log: log})

	pipeOpts := []pipeline.Option{pipeline.WithLogger(log)}
	if fanout.Size() > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithPublisher(fanout))
	}
	pipe := pipeline.New(pipeline.Config{
		Providers:      enabled,
		ResultsPath:    cfg.ResultsPath,
		FlashcardsPath: cfg.FlashcardsPath,
	}, crawlService, ret, gen, pipeOpts...)

	return &App{
		cfg:         cfg,
		log:         log,
		providerReg: providerReg,
		index:       index,
		fanout:      fanout,
		retriever:   ret,
		pipeline:    pipe,
	}, nil
}

// buildFanout loads the optional publishers file. An empty path yields an
// empty fanout.
func buildFanout(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	if strings.TrimSpace(path) == "" {
		log.InfoObj("no publishers configured", "publishers_file", path)
		return publishers.NewFanout(nil), nil
	}

	publisherReg, err := publishers.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabledPublishers := publisherReg.Enabled()
	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabledPublishers, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabledPublishers))
	for _, pubCfg := range enabledPublishers {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubClients), nil
}

// Search runs fetch, filter and generation for keyword. An interrupted run
// returns its partial session together with the error.
func (a *App) Search(ctx context.Context, keyword string, observe pipeline.Observer) (pipeline.Session, error) {
	if a == nil || a.pipeline == nil {
		return pipeline.Session{}, fmt.Errorf("app is not initialized")
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return pipeline.Session{}, fmt.Errorf("keyword must not be empty")
	}
	if len(a.providerReg.Enabled()) == 0 {
		a.log.WarnObj("no providers enabled", "providers_file", a.cfg.ProvidersFile)
	}

	start := time.Now()
	sess, err := a.pipeline.Run(ctx, keyword, observe)
	if err != nil {
		return sess, err
	}
	a.log.InfoObj("search completed", "search_meta", map[string]any{
		"run_id":     sess.RunID,
		"keyword":    keyword,
		"articles":   len(sess.Articles),
		"succeeded":  sess.Report.Succeeded,
		"failed":     sess.Report.Failed,
		"filter":     a.retriever.LastStats(),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return sess, nil
}

// Generate regenerates flashcards from the persisted article list.
func (a *App) Generate(ctx context.Context, observe pipeline.Observer) (pipeline.Report, error) {
	if a == nil || a.pipeline == nil {
		return pipeline.Report{}, fmt.Errorf("app is not initialized")
	}
	return a.pipeline.Generate(ctx, observe)
}

// Serve runs the web UI until ctx is cancelled. A flashcards file left by an
// earlier run is shown until the first search replaces it.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.pipeline == nil {
		return fmt.Errorf("app is not initialized")
	}

	opts := []web.Option{web.WithLogger(a.log)}
	if batches, err := pipeline.ReadBatches(a.cfg.FlashcardsPath); err == nil {
		opts = append(opts, web.WithSession(pipeline.Session{Batches: batches}))
	} else if !errors.Is(err, pipeline.ErrInputMissing) {
		a.log.WarnObj("previous flashcards not loaded", "error", err.Error())
	}

	srv, err := web.NewServer(a.pipeline, opts...)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, a.cfg.WebAddr)
}

// Close releases the index and publisher clients.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index: %w", err))
		}
	}
	if err := a.fanout.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publishers: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		a.log.ErrorObj("app close failed", "error", err.Error())
		return err
	}
	return nil
}
