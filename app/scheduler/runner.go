package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/news-comb/app/dedup"
	"github.com/lysyi3m/news-comb/app/ingest"
)

// ErrCycleInProgress is returned when a cycle trigger arrives while a
// previous cycle is still running. Overlapping triggers are dropped, not
// queued.
var ErrCycleInProgress = errors.New("ingestion cycle already in progress")

type IngestRunner interface {
	Run(ctx context.Context) (ingest.Summary, error)
}

type BatchResolver interface {
	ResolveBatch(ctx context.Context, limit int) (dedup.BatchResult, error)
}

var _ IngestRunner = (*ingest.Ingestor)(nil)
var _ BatchResolver = (*dedup.Resolver)(nil)

// CycleSummary reports one full ingestion-then-resolution pass.
type CycleSummary struct {
	StartedAt  time.Time
	Duration   time.Duration
	Ingestion  ingest.Summary
	Resolution dedup.BatchResult
}

// Runner drives the ingestion cycle on a fixed cadence and exposes RunCycle
// for manual or forced runs. At most one cycle executes at a time, enforced
// by an in-memory running flag; the runner is constructed once per process
// and passed by handle, there is no package-level instance.
type Runner struct {
	ingestor  IngestRunner
	resolver  BatchResolver
	interval  time.Duration
	batchSize int

	mu          sync.Mutex
	running     bool
	lastRunAt   *time.Time
	lastSummary *CycleSummary

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(ingestor IngestRunner, resolver BatchResolver, interval time.Duration, batchSize int) *Runner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		ingestor:  ingestor,
		resolver:  resolver,
		interval:  interval,
		batchSize: batchSize,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the periodic trigger. The first cycle runs immediately.
func (r *Runner) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.runScheduled()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.runScheduled()
			}
		}
	}()

	slog.Info("Cycle runner started", "interval", r.interval, "batch_size", r.batchSize)
}

// Stop cancels the periodic trigger and waits for an in-flight cycle.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
	slog.Info("Cycle runner stopped")
}

func (r *Runner) runScheduled() {
	if _, err := r.RunCycle(r.ctx); err != nil && !errors.Is(err, ErrCycleInProgress) && !errors.Is(err, context.Canceled) {
		slog.Error("Scheduled cycle failed", "error", err)
	}
}

// RunCycle executes one full cycle: ingestion across all active sources, then
// batch resolution over the most recent items. Safe to call repeatedly; a
// trigger while a cycle is in flight is rejected with ErrCycleInProgress.
// Only an unreachable store fails a cycle; per-source and per-item errors
// are contained below this level.
func (r *Runner) RunCycle(ctx context.Context) (CycleSummary, error) {
	if !r.tryBegin() {
		slog.Warn("Cycle trigger dropped, previous cycle still running")
		return CycleSummary{}, ErrCycleInProgress
	}
	defer r.finish()

	start := time.Now().UTC()
	slog.Info("Cycle started")

	ingestion, err := r.ingestor.Run(ctx)
	if err != nil {
		slog.Error("Cycle failed during ingestion", "error", err)
		return CycleSummary{StartedAt: start, Duration: time.Since(start)}, err
	}

	resolution, err := r.resolver.ResolveBatch(ctx, r.batchSize)
	if err != nil {
		slog.Error("Cycle failed during resolution", "error", err)
		return CycleSummary{StartedAt: start, Duration: time.Since(start), Ingestion: ingestion}, err
	}

	summary := CycleSummary{
		StartedAt:  start,
		Duration:   time.Since(start),
		Ingestion:  ingestion,
		Resolution: resolution,
	}

	r.mu.Lock()
	r.lastRunAt = &start
	r.lastSummary = &summary
	r.mu.Unlock()

	slog.Info("Cycle completed",
		"duration", summary.Duration,
		"sources_processed", ingestion.SourcesProcessed,
		"sources_failed", ingestion.SourcesFailed,
		"items_new", ingestion.ItemsNew,
		"originals", resolution.Originals,
		"duplicates", resolution.Duplicates)

	return summary, nil
}

// Status reports whether a cycle is in flight plus the last completed run.
func (r *Runner) Status() (bool, *time.Time, *CycleSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running, r.lastRunAt, r.lastSummary
}

func (r *Runner) tryBegin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Runner) finish() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}
