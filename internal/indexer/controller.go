package indexer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const pollInterval = 100 * time.Millisecond

// Status is a snapshot of the current run
type Status struct {
	Running   bool      `json:"running"`
	Paused    bool      `json:"paused"`
	Scanning  bool      `json:"scanning"`
	RunID     string    `json:"run_id,omitempty"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// controller carries the pause and cancel signals of the active run
type controller struct {
	paused atomic.Bool

	mu        sync.Mutex
	running   bool
	scanning  bool
	cancel    context.CancelFunc
	runID     string
	total     int
	completed int
	startedAt time.Time
}

func (c *controller) begin(runID string, total int, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.cancel = cancel
	c.runID = runID
	c.total = total
	c.completed = 0
	c.startedAt = time.Now()
}

func (c *controller) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.scanning = false
	c.cancel = nil
	c.paused.Store(false)
}

func (c *controller) setScanning(v bool) {
	c.mu.Lock()
	c.scanning = v
	c.mu.Unlock()
}

func (c *controller) setTotal(n int) {
	c.mu.Lock()
	c.total = n
	c.mu.Unlock()
}

func (c *controller) setCompleted(n int) {
	c.mu.Lock()
	c.completed = n
	c.mu.Unlock()
}

func (c *controller) status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return Status{}
	}
	return Status{
		Running:   true,
		Paused:    c.paused.Load(),
		Scanning:  c.scanning,
		RunID:     c.runID,
		Completed: c.completed,
		Total:     c.total,
		StartedAt: c.startedAt,
	}
}

// pause returns false when no run is active
func (c *controller) pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false
	}
	c.paused.Store(true)
	return true
}

func (c *controller) resume() bool {
	return c.paused.Swap(false)
}

func (c *controller) stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.cancel == nil {
		return false
	}
	c.cancel()
	c.paused.Store(false)
	return true
}

// waitIfPaused blocks while the run is paused. It returns the context error
// once the run is cancelled.
func (c *controller) waitIfPaused(ctx context.Context) error {
	if !c.paused.Load() {
		return ctx.Err()
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for c.paused.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return ctx.Err()
}

// Pause suspends dispatch and workers at their next checkpoint. It reports
// whether a run was active.
func (idx *Indexer) Pause() bool {
	ok := idx.ctrl.pause()
	if ok {
		idx.logger.Info().Msg("indexing paused")
	}
	return ok
}

// Resume continues a paused run. It reports whether the run was paused.
func (idx *Indexer) Resume() bool {
	ok := idx.ctrl.resume()
	if ok {
		idx.logger.Info().Msg("indexing resumed")
	}
	return ok
}

// Cancel stops the active run. Files not yet dispatched are counted as
// cancelled; files already in flight finish. It reports whether a run was active.
func (idx *Indexer) Cancel() bool {
	ok := idx.ctrl.stop()
	if ok {
		idx.logger.Info().Msg("indexing cancelled")
	}
	return ok
}

// Status returns a snapshot of the active run, or a zero Status when idle
func (idx *Indexer) Status() Status {
	return idx.ctrl.status()
}
