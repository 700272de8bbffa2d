package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/news-comb/app/dedup"
	"github.com/lysyi3m/news-comb/app/ingest"
)

type fakeIngestor struct {
	mu      sync.Mutex
	runs    int
	summary ingest.Summary
	err     error
	block   chan struct{} // when set, Run waits until the channel is closed
	started chan struct{} // when set, Run signals here once entered
}

func (f *fakeIngestor) Run(ctx context.Context) (ingest.Summary, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return f.summary, f.err
}

func (f *fakeIngestor) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

type fakeResolver struct {
	mu     sync.Mutex
	limits []int
	result dedup.BatchResult
	err    error
}

func (f *fakeResolver) ResolveBatch(ctx context.Context, limit int) (dedup.BatchResult, error) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	return f.result, f.err
}

func TestRunCycle(t *testing.T) {
	ingestor := &fakeIngestor{summary: ingest.Summary{SourcesProcessed: 2, ItemsNew: 5}}
	resolver := &fakeResolver{result: dedup.BatchResult{Total: 5, Originals: 4, Duplicates: 1}}

	runner := NewRunner(ingestor, resolver, time.Hour, 100)

	summary, err := runner.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if summary.Ingestion.ItemsNew != 5 {
		t.Errorf("Expected ingestion summary carried through, got %+v", summary.Ingestion)
	}
	if summary.Resolution.Duplicates != 1 {
		t.Errorf("Expected resolution result carried through, got %+v", summary.Resolution)
	}
	if summary.StartedAt.IsZero() {
		t.Error("Expected start time to be set")
	}

	running, lastRunAt, lastSummary := runner.Status()
	if running {
		t.Error("Expected no cycle in flight after completion")
	}
	if lastRunAt == nil || !lastRunAt.Equal(summary.StartedAt) {
		t.Errorf("Expected last run time %v, got %v", summary.StartedAt, lastRunAt)
	}
	if lastSummary == nil || lastSummary.Resolution.Total != 5 {
		t.Errorf("Expected last summary recorded, got %+v", lastSummary)
	}
}

func TestRunCyclePassesBatchSize(t *testing.T) {
	resolver := &fakeResolver{}
	runner := NewRunner(&fakeIngestor{}, resolver, time.Hour, 25)

	if _, err := runner.RunCycle(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(resolver.limits) != 1 || resolver.limits[0] != 25 {
		t.Errorf("Expected batch size 25 passed to resolver, got %v", resolver.limits)
	}
}

func TestRunCycleRejectsOverlappingTrigger(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	ingestor := &fakeIngestor{block: block, started: started}
	resolver := &fakeResolver{}

	runner := NewRunner(ingestor, resolver, time.Hour, 100)

	firstDone := make(chan error, 1)
	go func() {
		_, err := runner.RunCycle(context.Background())
		firstDone <- err
	}()

	<-started

	// The overlapping trigger is dropped, not queued
	if _, err := runner.RunCycle(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Errorf("Expected ErrCycleInProgress, got: %v", err)
	}

	running, _, _ := runner.Status()
	if !running {
		t.Error("Expected Status to report a cycle in flight")
	}

	close(block)
	if err := <-firstDone; err != nil {
		t.Fatalf("First cycle should complete normally, got: %v", err)
	}

	if ingestor.runCount() != 1 {
		t.Errorf("Dropped trigger must not run ingestion, got %d runs", ingestor.runCount())
	}

	// The flag clears once the cycle finishes
	if _, err := runner.RunCycle(context.Background()); err != nil {
		t.Errorf("Expected next trigger to succeed, got: %v", err)
	}
}

func TestRunCycleIngestionFailure(t *testing.T) {
	ingestor := &fakeIngestor{err: errors.New("database is closed")}
	resolver := &fakeResolver{}

	runner := NewRunner(ingestor, resolver, time.Hour, 100)

	if _, err := runner.RunCycle(context.Background()); err == nil {
		t.Fatal("Expected cycle to fail when ingestion fails")
	}

	if len(resolver.limits) != 0 {
		t.Error("Resolution must not run after ingestion failure")
	}

	running, lastRunAt, _ := runner.Status()
	if running {
		t.Error("Expected running flag cleared after failure")
	}
	if lastRunAt != nil {
		t.Error("Failed cycles must not record a last run time")
	}
}

func TestRunCycleResolutionFailure(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("database is closed")}
	runner := NewRunner(&fakeIngestor{}, resolver, time.Hour, 100)

	if _, err := runner.RunCycle(context.Background()); err == nil {
		t.Fatal("Expected cycle to fail when batch resolution fails")
	}

	// The running flag clears even on failure
	if _, err := runner.RunCycle(context.Background()); errors.Is(err, ErrCycleInProgress) {
		t.Error("Expected runner to accept triggers after a failed cycle")
	}
}

func TestStartRunsImmediately(t *testing.T) {
	ingestor := &fakeIngestor{}
	runner := NewRunner(ingestor, &fakeResolver{}, time.Hour, 100)

	runner.Start()
	defer runner.Stop()

	deadline := time.After(2 * time.Second)
	for ingestor.runCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("Expected an immediate first cycle after Start")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStopWaitsForInFlightCycle(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	ingestor := &fakeIngestor{block: block, started: started}

	runner := NewRunner(ingestor, &fakeResolver{}, time.Hour, 100)
	runner.Start()

	<-started

	stopped := make(chan struct{})
	go func() {
		runner.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop should wait for the in-flight cycle")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the cycle finished")
	}
}
