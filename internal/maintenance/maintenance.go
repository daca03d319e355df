// Package maintenance keeps the catalog consistent with the filesystem:
// a cron-scheduled stale-entry sweep and on-demand full-text rebuilds.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"

	"github.com/dshills/filesense/internal/storage"
)

const (
	DefaultSchedule = "@every 6h"
	runTimeout      = 30 * time.Minute
)

// Report describes the latest cleanup
type Report struct {
	At       time.Time     `json:"at"`
	Removed  int           `json:"removed"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Service runs maintenance jobs against the catalog
type Service struct {
	storage  storage.Storage
	logger   *log.Logger
	onChange func()

	cron    *cron.Cron
	mu      sync.Mutex
	last    *Report
	started bool
}

// New creates a maintenance service. onChange runs after any job that may
// have modified the catalog.
func New(store storage.Storage, logger *log.Logger, onChange func()) *Service {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &Service{
		storage:  store,
		logger:   logger,
		onChange: onChange,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start schedules the stale-entry cleanup. An empty schedule uses DefaultSchedule.
func (s *Service) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("maintenance already started")
	}

	if _, err := s.cron.AddFunc(schedule, s.runScheduled); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.started = true

	s.logger.Info().Str("schedule", schedule).Msg("maintenance scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running job to finish
func (s *Service) Stop() {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("maintenance scheduler stopped")
}

func (s *Service) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if _, err := s.Cleanup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("scheduled cleanup failed")
	}
}

// Cleanup removes records whose files no longer exist and then drops
// derived caches
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	start := time.Now()
	removed, err := s.storage.CleanupStaleEntries(ctx)

	report := &Report{At: start, Removed: removed, Duration: time.Since(start)}
	if err != nil {
		report.Error = err.Error()
	}
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("failed to clean up stale entries: %w", err)
	}

	s.changed()
	s.logger.Info().Int("removed", removed).Dur("duration", report.Duration).Msg("stale entries cleaned up")
	return removed, nil
}

// RebuildIndex repopulates the full-text index from the catalog table
func (s *Service) RebuildIndex(ctx context.Context) (int, error) {
	n, err := s.storage.RebuildFullTextIndex(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild full-text index: %w", err)
	}
	s.changed()
	s.logger.Info().Int("rows", n).Msg("full-text index rebuilt")
	return n, nil
}

// LastCleanup returns the latest cleanup report, or nil before the first run
func (s *Service) LastCleanup() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

func (s *Service) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
