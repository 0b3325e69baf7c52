package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jupark12/portfolio-grader/analysis"
	"github.com/jupark12/portfolio-grader/config"
	"github.com/jupark12/portfolio-grader/docstore"
	"github.com/jupark12/portfolio-grader/queue"
	"github.com/jupark12/portfolio-grader/resume"
	"github.com/jupark12/portfolio-grader/scraper"
	"github.com/jupark12/portfolio-grader/screenshot"
	"github.com/jupark12/portfolio-grader/storage"
	"github.com/jupark12/portfolio-grader/worker"
	"github.com/prometheus/client_golang/prometheus"
)

// app holds every long-lived dependency built from the config.
type app struct {
	store       storage.Client
	docs        docstore.Store
	board       *queue.Board
	coordinator *worker.Coordinator

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newStorage(ctx context.Context, c config.StorageConfig) (storage.Client, func(), error) {
	switch c.Backend {
	case config.StorageGCS:
		gcs, err := storage.NewGCSStorage(ctx, c.Bucket, c.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return gcs, func() { gcs.Close() }, nil
	case config.StorageMemory:
		return storage.NewMemoryStorage(), func() {}, nil
	default:
		local, err := storage.NewLocalStorage(c.Dir, c.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		return local, func() {}, nil
	}
}

func newDocstore(ctx context.Context, c config.DocstoreConfig) (docstore.Store, error) {
	switch c.Backend {
	case config.DocstorePostgres:
		return docstore.NewPostgresStore(ctx, c.DSN)
	case config.DocstoreSQLite:
		return docstore.NewSQLiteStore(c.DSN)
	default:
		slog.Info("no document store configured, mirroring disabled")
		return docstore.Noop{}, nil
	}
}

// newApp wires the pipeline. reg receives the worker metrics.
func newApp(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, closeStore, err := newStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	docs, err := newDocstore(ctx, cfg.Docstore)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}
	a.docs = docs
	a.closers = append(a.closers, func() { docs.Close() })

	board, err := queue.NewBoard(cfg.DataDir, docs)
	if err != nil {
		return nil, err
	}
	a.board = board

	deps := worker.Deps{
		Status:          board,
		Store:           store,
		Docs:            docs,
		ParseResume:     resume.ParseFile,
		ItemConcurrency: cfg.ItemConcurrency,
		ScrapeTimeout:   cfg.ScrapeTimeout(),
		AnalyzeTimeout:  cfg.GeminiTimeout(),
		Metrics:         worker.NewMetrics(reg),
	}

	// The interface fields stay nil unless set, so a disabled browser is
	// never a typed nil.
	var renderer scraper.Renderer
	if cfg.Screenshots.Enabled || cfg.Scraper.RenderJS {
		browser := screenshot.NewBrowser(screenshot.BrowserOptions{
			Width:             cfg.Screenshots.Width,
			Height:            cfg.Screenshots.Height,
			NavigationTimeout: cfg.ScrapeTimeout(),
			ExecPath:          cfg.Screenshots.ChromePath,
		})
		a.closers = append(a.closers, browser.Close)
		if cfg.Scraper.RenderJS {
			renderer = browser
		}
		if cfg.Screenshots.Enabled {
			deps.Screenshots = screenshot.NewService(browser, store, screenshot.Options{
				MaxBytes: cfg.Screenshots.MaxBytes,
				MaxWidth: cfg.Screenshots.MaxWidth,
			})
		}
	}

	deps.Scraper = scraper.NewRegistry(scraper.NewFetcher(scraper.FetcherOptions{
		Timeout:     cfg.ScrapeTimeout(),
		RatePerHost: cfg.Scraper.RatePerHost,
	}), renderer)

	if cfg.Gemini.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}
	deps.Analyzer = analysis.NewAnalyzer(analysis.NewGemini(analysis.GeminiOptions{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		Timeout: cfg.GeminiTimeout(),
	}))

	a.coordinator, err = worker.NewCoordinator(deps)
	if err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}
