// Package app assembles a running fathom instance from configuration:
// providers resolved per feature, optional observability and rate-limit
// wrappers, the searcher engine, and the ingestor. The HTTP server rebuilds
// through here on every provider hot-swap.
package app

import (
	"context"
	"fmt"
	"log/slog"

	fathom "github.com/fathomhq/fathom"
	"github.com/fathomhq/fathom/ingest"
	"github.com/fathomhq/fathom/internal/config"
	"github.com/fathomhq/fathom/observer"
	"github.com/fathomhq/fathom/provider/resolve"
)

// loaderProviders are the accepted file_loader provider names. They all map
// to the ingestor's extension-based extractor registry; "auto" is the
// default and detects per file.
var loaderProviders = map[string]bool{
	"auto": true, "text": true, "markdown": true, "html": true,
	"csv": true, "json": true, "docx": true, "pdf": true,
}

// App is one assembled fathom instance. All fields are process-scoped and
// safe for concurrent use.
type App struct {
	Engine   *fathom.Engine
	Ingestor *ingest.Ingestor

	LLM       fathom.Provider
	Embedding fathom.EmbeddingProvider
	DB        fathom.VectorDB

	cfg      config.Config
	shutdown func(context.Context) error
}

// Build resolves every configured feature and wires the engine. logger may
// be nil; components then stay silent.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if !loaderProviders[cfg.FileLoader.Provider] {
		return nil, fmt.Errorf("unknown file_loader provider %q (valid: auto, text, markdown, html, csv, json, docx, pdf)", cfg.FileLoader.Provider)
	}

	llm, err := resolve.Provider(resolve.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	embedder, err := resolve.EmbeddingProvider(resolve.EmbeddingConfig{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, err
	}

	db, err := resolve.VectorDB(ctx, resolve.VectorDBConfig{
		Provider:    cfg.VectorDB.Provider,
		Path:        cfg.VectorDB.Path,
		DSN:         cfg.VectorDB.DSN,
		Host:        cfg.VectorDB.Host,
		Port:        cfg.VectorDB.Port,
		APIKey:      cfg.VectorDB.APIKey,
		UseTLS:      cfg.VectorDB.UseTLS,
		Collection:  cfg.VectorDB.Collection,
		Description: cfg.VectorDB.Description,
	})
	if err != nil {
		return nil, err
	}

	crawler, err := resolve.Crawler(cfg.WebCrawler.Provider)
	if err != nil {
		return nil, err
	}

	shutdown := func(context.Context) error { return nil }
	if cfg.Observer.Enabled {
		inst, stop, err := observer.Init(ctx)
		if err != nil {
			return nil, fmt.Errorf("init observability: %w", err)
		}
		llm = observer.WrapProvider(llm, cfg.LLM.Model, inst)
		embedder = observer.WrapEmbedding(embedder, cfg.Embedding.Model, inst)
		db = observer.WrapVectorDB(db, inst)
		shutdown = stop
	}

	if cfg.LLM.RPM > 0 || cfg.LLM.TPM > 0 {
		var limits []fathom.RateLimitOption
		if cfg.LLM.RPM > 0 {
			limits = append(limits, fathom.RPM(cfg.LLM.RPM))
		}
		if cfg.LLM.TPM > 0 {
			limits = append(limits, fathom.TPM(cfg.LLM.TPM))
		}
		llm = fathom.WithRateLimit(llm, limits...)
	}

	searcherOpts := []fathom.SearcherOption{
		fathom.MaxIter(cfg.Query.MaxIter),
		fathom.EarlyStopping(cfg.Query.EarlyStopping),
	}
	if cfg.Query.TopK > 0 {
		searcherOpts = append(searcherOpts, fathom.TopK(cfg.Query.TopK))
	}
	if !cfg.Query.RouteCollection {
		searcherOpts = append(searcherOpts, fathom.DisableRouting())
	}
	if logger != nil {
		searcherOpts = append(searcherOpts, fathom.WithLogger(logger))
	}

	engine, err := fathom.NewEngine(llm, embedder, db, searcherOpts...)
	if err != nil {
		return nil, err
	}

	ingestOpts := []ingest.Option{ingest.WithCrawler(crawler)}
	if logger != nil {
		ingestOpts = append(ingestOpts, ingest.WithLogger(logger))
	}
	ingestor := ingest.NewIngestor(db, embedder, ingestOpts...)

	return &App{
		Engine:    engine,
		Ingestor:  ingestor,
		LLM:       llm,
		Embedding: embedder,
		DB:        db,
		cfg:       cfg,
		shutdown:  shutdown,
	}, nil
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Close releases backend connections and flushes observability exporters.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if closer, ok := a.DB.(interface{ Close() error }); ok {
		firstErr = closer.Close()
	}
	if err := a.shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
