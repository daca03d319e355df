// Package app wires configuration into the catalog, the indexing pipeline,
// the retrieval engine and maintenance. The MCP server, the HTTP API and the
// CLI all drive the same *App.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/phuslu/log"
	"github.com/spf13/cast"

	"github.com/dshills/filesense/internal/config"
	"github.com/dshills/filesense/internal/embedder"
	"github.com/dshills/filesense/internal/enricher"
	"github.com/dshills/filesense/internal/extract"
	"github.com/dshills/filesense/internal/indexer"
	"github.com/dshills/filesense/internal/maintenance"
	"github.com/dshills/filesense/internal/queryparser"
	"github.com/dshills/filesense/internal/quota"
	"github.com/dshills/filesense/internal/rerank"
	"github.com/dshills/filesense/internal/scanner"
	"github.com/dshills/filesense/internal/searcher"
	"github.com/dshills/filesense/internal/storage"
)

// Version is overridden at build time with -ldflags
var Version = "0.1.0-dev"

// App holds the long-lived components
type App struct {
	Config      *config.Config
	Logger      *log.Logger
	Storage     storage.Storage
	Indexer     *indexer.Indexer
	Searcher    *searcher.Searcher
	Maintenance *maintenance.Service
	Version     string
}

// New opens the catalog and builds every component from cfg
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = &log.DefaultLogger
	}

	dbPath := cfg.Storage.Path
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", dbPath, err)
	}
	store.SetLogger(logger)

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Storage: store,
		Version: Version,
	}
	if err := a.build(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	logger.Info().
		Str("catalog", dbPath).
		Str("enricher", cfg.Enricher.Provider).
		Str("embedder", cfg.Embedder.Provider).
		Str("rerank", cfg.Rerank.Provider).
		Str("quota", cfg.Quota.Authority).
		Msg("filesense ready")
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	provider, err := enricher.New(ctx, enricher.Config{
		Provider:      cfg.Enricher.Provider,
		APIKey:        cfg.Enricher.APIKey,
		Model:         cfg.Enricher.Model,
		BaseURL:       cfg.Enricher.BaseURL,
		MaxTokens:     cfg.Enricher.MaxTokens,
		RatePerMinute: cfg.Enricher.RatePerMinute,
		RateBurst:     cfg.Enricher.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("failed to create enrichment provider: %w", err)
	}

	emb, err := embedder.New(ctx, embedder.Config{
		Provider:  cfg.Embedder.Provider,
		APIKey:    cfg.Embedder.APIKey,
		Model:     cfg.Embedder.Model,
		Endpoint:  cfg.Embedder.Endpoint,
		CacheSize: cfg.Embedder.CacheSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	reranker, err := rerank.New(rerank.Config{
		Provider: cfg.Rerank.Provider,
		APIKey:   cfg.Rerank.APIKey,
		Model:    cfg.Rerank.Model,
		BaseURL:  cfg.Rerank.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create reranker: %w", err)
	}

	authority, err := quota.New(quota.Config{
		Authority: cfg.Quota.Authority,
		Limit:     cfg.Quota.Limit,
		URL:       cfg.Quota.URL,
		Token:     cfg.Quota.Token,
	})
	if err != nil {
		if cfg.Indexer.RequireSubscription {
			return fmt.Errorf("failed to create quota authority: %w", err)
		}
		a.Logger.Warn().Err(err).Msg("quota authority unavailable, indexing is unlimited")
		authority = quota.Unlimited{}
	}

	parser := queryparser.New(queryparser.Options{
		FuzzyCorrection: cfg.Search.FuzzyCorrection,
		SpellCorrection: cfg.Search.SpellCorrection,
	})

	a.Searcher = searcher.New(searcher.Deps{
		Storage:  a.Storage,
		Embedder: emb,
		Reranker: reranker,
		Parser:   parser,
		Logger:   a.Logger,
	}, searcher.Config{
		KeywordWeight: cfg.Search.KeywordWeight,
		CacheSize:     cfg.Search.CacheSize,
		CacheTTL:      cfg.Search.TTL(),
		DefaultLimit:  cfg.Search.DefaultLimit,
		MaxLimit:      cfg.Search.MaxLimit,
	})

	a.Indexer = indexer.New(indexer.Deps{
		Storage:   a.Storage,
		Provider:  provider,
		Embedder:  emb,
		Extractor: extract.New(a.Logger),
		Quota:     authority,
		Scanner:   scanner.New(a.Logger),
		Logger:    a.Logger,
	}, indexer.Config{
		Workers:             cfg.Indexer.Workers,
		TaskTimeout:         cfg.Indexer.Timeout(),
		MaxImageBytes:       cfg.Indexer.MaxImageBytes(),
		MaxSnippetChars:     cfg.Indexer.MaxSnippetChars,
		RequireSubscription: cfg.Indexer.RequireSubscription,
		OnChange:            a.catalogChanged,
	})

	a.Maintenance = maintenance.New(a.Storage, a.Logger, a.catalogChanged)

	if cfg.Search.SpellCorrection {
		if err := a.Searcher.RefreshVocabulary(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to load spelling vocabulary")
		}
	}
	return nil
}

// StartMaintenance starts the cleanup scheduler when enabled
func (a *App) StartMaintenance() error {
	if !a.Config.Maintenance.Enabled {
		return nil
	}
	return a.Maintenance.Start(a.Config.Maintenance.CleanupSchedule)
}

// IndexOptions builds per-run options from configuration
func (a *App) IndexOptions(force bool, progress func(completed, total int, message string)) indexer.Options {
	return indexer.Options{
		ForceReindex:  force,
		Progress:      progress,
		MaxFiles:      a.Config.Indexer.MaxFiles,
		IncludeHidden: a.Config.Indexer.IncludeHidden,
	}
}

// catalogChanged drops cached responses and retrains the speller
func (a *App) catalogChanged() {
	a.Searcher.InvalidateCache()
	if !a.Config.Search.SpellCorrection {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), vocabularyTimeout)
	defer cancel()
	if err := a.Searcher.RefreshVocabulary(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to refresh spelling vocabulary")
	}
}

// ResolveFile finds a record by numeric id or by path
func (a *App) ResolveFile(ctx context.Context, idOrPath string) (*storage.FileRecord, error) {
	idOrPath = strings.TrimSpace(idOrPath)
	if idOrPath == "" {
		return nil, fmt.Errorf("file id or path is required")
	}
	if id, err := cast.ToInt64E(idOrPath); err == nil && id > 0 {
		return a.Storage.GetFileByID(ctx, id)
	}
	return a.Storage.GetFileByPath(ctx, idOrPath)
}

// Close stops maintenance and closes the catalog
func (a *App) Close() error {
	a.Maintenance.Stop()
	if err := a.Storage.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("failed to close catalog: %w", err)
	}
	return nil
}
