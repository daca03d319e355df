package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/filesense/internal/embedder"
	"github.com/dshills/filesense/internal/enricher"
	"github.com/dshills/filesense/internal/extract"
	"github.com/dshills/filesense/internal/quota"
	"github.com/dshills/filesense/internal/scanner"
	"github.com/dshills/filesense/internal/storage"
)

const (
	DefaultWorkers       = 8
	MaxWorkers           = 50
	DefaultTaskTimeout   = 2 * time.Minute
	DefaultMaxImageBytes = 20 << 20

	// MaxOCRChars bounds the stored ocr_text
	MaxOCRChars = 5000
	// MaxEmbedChars bounds the text sent to the embedder
	MaxEmbedChars = 5000

	usageReportTimeout = 30 * time.Second
)

// Indexer runs the enrichment pipeline: detect -> enrich -> store -> embed
type Indexer struct {
	storage   storage.Storage
	provider  enricher.Provider
	embedder  embedder.Embedder
	extractor *extract.Extractor
	quota     quota.Authority
	scanner   *scanner.Scanner
	logger    *log.Logger

	cfg  Config
	lock IndexLock
	ctrl controller
}

// Config contains configuration for the indexer
type Config struct {
	Workers         int           // Concurrent workers (default 8, at most 50)
	TaskTimeout     time.Duration // Per-file enrichment timeout (default 2m)
	MaxImageBytes   int64         // Largest image sent as raw bytes (default 20 MiB)
	MaxSnippetChars int           // Extracted text sent to the provider (default 8000)

	// RequireSubscription turns a misconfigured quota authority into a hard failure
	RequireSubscription bool

	// OnChange runs after anything modified the catalog, e.g. to drop search caches
	OnChange func()
}

// Deps are the collaborators of an Indexer. Storage is required; the rest
// fall back to no-op or local implementations.
type Deps struct {
	Storage   storage.Storage
	Provider  enricher.Provider
	Embedder  embedder.Embedder
	Extractor *extract.Extractor
	Quota     quota.Authority
	Scanner   *scanner.Scanner
	Logger    *log.Logger
}

// Options tune one run
type Options struct {
	ForceReindex bool
	// Progress is called once per finished file, serialized, in completion order
	Progress func(completed, total int, message string)
	// Workers overrides the configured worker count for this run
	Workers int

	// Directory runs only
	MaxFiles      int
	IncludeHidden bool
	// ScanProgress is called with the number of files found so far
	ScanProgress func(found int)
}

// Statistics describes a finished run
type Statistics struct {
	RunID           string          `json:"run_id"`
	Total           int             `json:"total"`
	Indexed         int             `json:"indexed"`
	Skipped         int             `json:"skipped"`
	Failed          int             `json:"failed"`
	Cancelled       int             `json:"cancelled"`
	BillablePlanned int             `json:"billable_planned"`
	BillableIndexed int             `json:"billable_indexed"`
	UsageReported   int             `json:"usage_reported"`
	Denied          *quota.Decision `json:"denied,omitempty"`
	Errors          []FileError     `json:"errors"`
	Duration        time.Duration   `json:"duration"`
}

// New creates a new Indexer instance
func New(deps Deps, cfg Config) *Indexer {
	if deps.Logger == nil {
		deps.Logger = &log.DefaultLogger
	}
	if deps.Provider == nil {
		deps.Provider = enricher.NoneProvider{}
	}
	if deps.Embedder == nil {
		deps.Embedder = embedder.NoneProvider{}
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.New(deps.Logger)
	}
	if deps.Quota == nil {
		deps.Quota = quota.Unlimited{}
	}
	if deps.Scanner == nil {
		deps.Scanner = scanner.New(deps.Logger)
	}

	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	cfg.Workers = min(cfg.Workers, MaxWorkers)
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultMaxImageBytes
	}
	if cfg.MaxSnippetChars <= 0 {
		cfg.MaxSnippetChars = extract.DefaultMaxChars
	}

	return &Indexer{
		storage:   deps.Storage,
		provider:  deps.Provider,
		embedder:  deps.Embedder,
		extractor: deps.Extractor,
		quota:     deps.Quota,
		scanner:   deps.Scanner,
		logger:    deps.Logger,
		cfg:       cfg,
	}
}

// IndexFiles indexes the given entries
func (idx *Indexer) IndexFiles(ctx context.Context, entries []scanner.Entry, opts Options) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	return idx.run(ctx, entries, opts)
}

// IndexDirectory scans root and indexes every file found. The run is active
// from the first scanned entry, so it can be paused or cancelled mid-scan.
func (idx *Indexer) IndexDirectory(ctx context.Context, root string, opts Options) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	startTime := time.Now()
	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	idx.ctrl.begin(runID, 0, cancel)
	defer idx.ctrl.end()

	idx.ctrl.setScanning(true)
	entries, err := idx.scan(runCtx, root, opts)
	idx.ctrl.setScanning(false)
	if err != nil {
		if runCtx.Err() == nil {
			return nil, fmt.Errorf("failed to scan %s: %w", root, err)
		}
		idx.logger.Info().Str("run_id", runID).Str("root", root).Int("files", len(entries)).Msg("index run cancelled during scan")
		return &Statistics{
			RunID:     runID,
			Total:     len(entries),
			Cancelled: len(entries),
			Errors:    make([]FileError, 0),
			Duration:  time.Since(startTime),
		}, nil
	}
	idx.logger.Info().Str("root", root).Int("files", len(entries)).Msg("scan complete")

	return idx.execute(ctx, runCtx, runID, startTime, entries, opts)
}

// scan walks root lazily, blocking while the run is paused and stopping once
// it is cancelled
func (idx *Indexer) scan(ctx context.Context, root string, opts Options) ([]scanner.Entry, error) {
	var entries []scanner.Entry
	for entry, err := range idx.scanner.Scan(ctx, root, scanner.Options{
		MaxFiles:      opts.MaxFiles,
		IncludeHidden: opts.IncludeHidden,
	}) {
		if werr := idx.ctrl.waitIfPaused(ctx); werr != nil {
			return entries, werr
		}
		if err != nil {
			if entry.Path == root || ctx.Err() != nil {
				return entries, err
			}
			idx.logger.Warn().Err(err).Str("path", entry.Path).Msg("scan error")
			continue
		}
		entries = append(entries, entry)
		idx.ctrl.setTotal(len(entries))
		if opts.ScanProgress != nil {
			opts.ScanProgress(len(entries))
		}
	}
	return entries, nil
}

// IndexFile indexes a single file
func (idx *Indexer) IndexFile(ctx context.Context, path string, force bool) (*Statistics, error) {
	entry, err := idx.scanner.EntryFor(path)
	if err != nil {
		// let the pipeline classify missing or unreadable files
		entry = scanner.Entry{Path: path, Name: filepath.Base(path), Extension: extract.Ext(path)}
	}
	return idx.IndexFiles(ctx, []scanner.Entry{entry}, Options{ForceReindex: force, Workers: 1})
}

// run executes one pipeline pass. The caller holds the lock.
func (idx *Indexer) run(ctx context.Context, entries []scanner.Entry, opts Options) (*Statistics, error) {
	startTime := time.Now()
	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	idx.ctrl.begin(runID, len(entries), cancel)
	defer idx.ctrl.end()

	return idx.execute(ctx, runCtx, runID, startTime, entries, opts)
}

// execute admits and dispatches entries on the active run. runCtx carries
// the run's cancel signal; ctx outlives it for usage reporting.
func (idx *Indexer) execute(ctx, runCtx context.Context, runID string, startTime time.Time, entries []scanner.Entry, opts Options) (*Statistics, error) {
	stats := &Statistics{
		RunID:  runID,
		Total:  len(entries),
		Errors: make([]FileError, 0),
	}
	idx.ctrl.setTotal(len(entries))

	stats.BillablePlanned = countBillable(entries)
	decision, err := idx.admit(ctx, stats.BillablePlanned)
	if err != nil {
		return nil, err
	}
	if decision != nil {
		idx.logger.Warn().Str("run_id", stats.RunID).Str("reason", decision.Reason).Msg("index run denied by quota")
		stats.Denied = decision
		stats.Duration = time.Since(startTime)
		return stats, nil
	}

	workers := idx.cfg.Workers
	if opts.Workers > 0 {
		workers = min(opts.Workers, MaxWorkers)
	}

	idx.logger.Info().Str("run_id", stats.RunID).Int("files", len(entries)).Int("workers", workers).Msg("index run started")

	// Create worker pool with semaphore
	semaphore := make(chan struct{}, workers)

	// Track progress with atomic counters
	var (
		indexed         int32
		skipped         int32
		failedCount     int32
		cancelledCount  int32
		billableIndexed int32
	)

	var mu sync.Mutex // Protects stats.Errors and the progress sequence
	completed := 0

	record := func(entry scanner.Entry, out outcome) {
		switch out.status {
		case statusIndexed:
			atomic.AddInt32(&indexed, 1)
			if out.billable {
				atomic.AddInt32(&billableIndexed, 1)
			}
		case statusSkipped:
			atomic.AddInt32(&skipped, 1)
		case statusCancelled:
			atomic.AddInt32(&cancelledCount, 1)
		default:
			atomic.AddInt32(&failedCount, 1)
		}

		mu.Lock()
		defer mu.Unlock()
		if fe := out.fileError(entry.Path); fe != nil {
			stats.Errors = append(stats.Errors, *fe)
			if out.status == statusFailed {
				idx.logger.Warn().Str("path", entry.Path).Str("kind", string(fe.Kind)).Msg(fe.Message)
			}
		}
		completed++
		idx.ctrl.setCompleted(completed)
		if opts.Progress != nil {
			opts.Progress(completed, len(entries), out.message(entry.Name))
		}
	}

	var g errgroup.Group

dispatch:
	for i, entry := range entries {
		if err := idx.ctrl.waitIfPaused(runCtx); err != nil {
			atomic.AddInt32(&cancelledCount, int32(len(entries)-i))
			break
		}

		select {
		case <-runCtx.Done():
			atomic.AddInt32(&cancelledCount, int32(len(entries)-i))
			break dispatch
		case semaphore <- struct{}{}:
			// Acquire semaphore
		}

		g.Go(func() error {
			defer func() { <-semaphore }() // Release semaphore
			record(entry, idx.processFile(runCtx, entry, opts.ForceReindex))
			return nil
		})
	}

	// Workers never return errors; per-file failures are recorded above
	_ = g.Wait()

	stats.Indexed = int(indexed)
	stats.Skipped = int(skipped)
	stats.Failed = int(failedCount)
	stats.Cancelled = int(cancelledCount)
	stats.BillableIndexed = int(billableIndexed)

	idx.reportUsage(ctx, stats)

	if stats.Indexed > 0 {
		idx.changed()
	}

	stats.Duration = time.Since(startTime)
	idx.logger.Info().
		Str("run_id", stats.RunID).
		Int("indexed", stats.Indexed).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Int("cancelled", stats.Cancelled).
		Dur("duration", stats.Duration).
		Msg("index run finished")

	return stats, nil
}

// admit asks the quota authority about the billable files of a run. A non-nil
// decision means the run is denied.
func (idx *Indexer) admit(ctx context.Context, billable int) (*quota.Decision, error) {
	if billable == 0 {
		return nil, nil
	}
	d, err := idx.quota.CanAdmit(ctx, billable)
	if err != nil {
		if errors.Is(err, quota.ErrMisconfigured) && idx.cfg.RequireSubscription {
			return nil, fmt.Errorf("failed to check index quota: %w", err)
		}
		idx.logger.Warn().Err(err).Int("billable", billable).Msg("quota check failed, allowing run")
		return nil, nil
	}
	if !d.Allowed {
		return &d, nil
	}
	return nil, nil
}

// reportUsage records billable usage, also after a cancelled run
func (idx *Indexer) reportUsage(ctx context.Context, stats *Statistics) {
	n := min(stats.BillablePlanned, stats.BillableIndexed)
	if n <= 0 {
		return
	}

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), usageReportTimeout)
	defer cancel()

	if err := idx.quota.ReportUsage(reportCtx, n); err != nil {
		idx.logger.Error().Err(err).Str("run_id", stats.RunID).Int("count", n).Msg("failed to report usage")
		return
	}
	stats.UsageReported = n
}

func (idx *Indexer) changed() {
	if idx.cfg.OnChange != nil {
		idx.cfg.OnChange()
	}
}

func countBillable(entries []scanner.Entry) int {
	n := 0
	for _, e := range entries {
		if extract.IsMedia(e.Path) {
			n++
		}
	}
	return n
}
