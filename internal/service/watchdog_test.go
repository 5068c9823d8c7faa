package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/quernlabs/quern/internal/apperrors"
	"github.com/quernlabs/quern/internal/domain"
	"github.com/quernlabs/quern/internal/logger"
)

type failRecord struct {
	id      string
	kind    apperrors.Kind
	message string
}

// fakeWatchLedger is an in-memory WatchdogLedger. Run sweeps from its own
// goroutine, so it is mutex-guarded.
type fakeWatchLedger struct {
	mu sync.Mutex

	stale    []domain.Job
	staleErr error
	cutoff   time.Time
	scans    int

	pending    []domain.Job
	listStatus domain.JobStatus
	listLimit  int

	failed   []failRecord
	failErrs map[string]error
}

func (f *fakeWatchLedger) FindStale(ctx context.Context, cutoff time.Time) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	f.cutoff = cutoff
	if f.staleErr != nil {
		return nil, f.staleErr
	}
	return f.stale, nil
}

func (f *fakeWatchLedger) List(ctx context.Context, status domain.JobStatus, jobType domain.JobType, limit, offset int) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listStatus = status
	f.listLimit = limit
	return f.pending, nil
}

func (f *fakeWatchLedger) MarkFailed(ctx context.Context, id string, kind apperrors.Kind, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failErrs[id]; ok {
		return err
	}
	f.failed = append(f.failed, failRecord{id: id, kind: kind, message: message})
	return nil
}

func (f *fakeWatchLedger) scanCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scans
}

func newTestWatchdog(ledger *fakeWatchLedger, timeout, interval time.Duration) *Watchdog {
	log := logger.New(&logger.Config{Level: "error", Output: io.Discard, ServiceName: "test"})
	return NewWatchdog(ledger, timeout, interval, log)
}

func TestWatchdogSweepFailsSilentJobs(t *testing.T) {
	ledger := &fakeWatchLedger{
		stale: []domain.Job{
			{ID: "job-1", EngineName: "a", Status: domain.JobStatusActive},
			{ID: "job-2", EngineName: "b", Status: domain.JobStatusActive},
		},
	}
	w := newTestWatchdog(ledger, time.Minute, time.Second)

	before := time.Now().UTC().Add(-time.Minute)
	if got := w.Sweep(context.Background()); got != 2 {
		t.Fatalf("expected 2 failed jobs, got %d", got)
	}
	after := time.Now().UTC().Add(-time.Minute)

	if ledger.cutoff.Before(before) || ledger.cutoff.After(after) {
		t.Errorf("cutoff %v outside [%v, %v]", ledger.cutoff, before, after)
	}

	if len(ledger.failed) != 2 {
		t.Fatalf("expected 2 failure records, got %d", len(ledger.failed))
	}
	for _, rec := range ledger.failed {
		if rec.kind != apperrors.KindTimeout {
			t.Errorf("job %s: expected timeout, got %q", rec.id, rec.kind)
		}
		if rec.message != "no heartbeat for 1m0s, worker presumed dead" {
			t.Errorf("job %s: unexpected message %q", rec.id, rec.message)
		}
	}
}

func TestWatchdogSweepToleratesFinishRace(t *testing.T) {
	// job-1 reaches a terminal state between the scan and the write; the
	// rejected transition is the race resolving, not an error.
	ledger := &fakeWatchLedger{
		stale: []domain.Job{
			{ID: "job-1", Status: domain.JobStatusActive},
			{ID: "job-2", Status: domain.JobStatusActive},
		},
		failErrs: map[string]error{
			"job-1": apperrors.New(apperrors.KindConflict, "job job-1 is succeeded, cannot transition to failed"),
		},
	}
	w := newTestWatchdog(ledger, time.Minute, time.Second)

	if got := w.Sweep(context.Background()); got != 1 {
		t.Fatalf("expected 1 failed job, got %d", got)
	}
	if len(ledger.failed) != 1 || ledger.failed[0].id != "job-2" {
		t.Errorf("unexpected failure records: %v", ledger.failed)
	}
}

func TestWatchdogSweepScanFailure(t *testing.T) {
	ledger := &fakeWatchLedger{staleErr: apperrors.New(apperrors.KindInternal, "db locked")}
	w := newTestWatchdog(ledger, time.Minute, time.Second)

	if got := w.Sweep(context.Background()); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestWatchdogSweepStartupFailsLeftovers(t *testing.T) {
	ledger := &fakeWatchLedger{
		stale: []domain.Job{
			{ID: "job-1", Status: domain.JobStatusActive},
		},
		pending: []domain.Job{
			{ID: "job-2", Status: domain.JobStatusPending},
			{ID: "job-3", Status: domain.JobStatusPending},
		},
	}
	w := newTestWatchdog(ledger, time.Minute, time.Second)

	if err := w.SweepStartup(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ledger.failed) != 3 {
		t.Fatalf("expected 3 failure records, got %d", len(ledger.failed))
	}
	for _, rec := range ledger.failed {
		if rec.kind != apperrors.KindTimeout {
			t.Errorf("job %s: expected timeout, got %q", rec.id, rec.kind)
		}
		if rec.message != "build abandoned by a previous process" {
			t.Errorf("job %s: unexpected message %q", rec.id, rec.message)
		}
	}

	// Leftover pendings are listed without a cap.
	if ledger.listStatus != domain.JobStatusPending || ledger.listLimit != 0 {
		t.Errorf("unexpected pending listing: status=%q limit=%d", ledger.listStatus, ledger.listLimit)
	}

	// Every active job predates the process, so the cutoff is now.
	if time.Since(ledger.cutoff) > 2*time.Second {
		t.Errorf("expected a cutoff of now, got %v", ledger.cutoff)
	}
}

func TestWatchdogRunStopsOnCancel(t *testing.T) {
	ledger := &fakeWatchLedger{}
	w := newTestWatchdog(ledger, time.Minute, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for ledger.scanCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ledger.scanCount() == 0 {
		t.Fatal("watchdog never swept")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not stop on context cancellation")
	}
}

func TestWatchdogDefaults(t *testing.T) {
	w := newTestWatchdog(&fakeWatchLedger{}, 0, 0)
	if w.timeout != 5*time.Minute {
		t.Errorf("unexpected default timeout %v", w.timeout)
	}
	if w.interval != 30*time.Second {
		t.Errorf("unexpected default interval %v", w.interval)
	}
}
