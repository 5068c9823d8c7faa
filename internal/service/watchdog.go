package service

import (
	"context"
	"fmt"
	"time"

	"github.com/quernlabs/quern/internal/apperrors"
	"github.com/quernlabs/quern/internal/domain"
	"github.com/quernlabs/quern/internal/logger"
)

// WatchdogLedger is the slice of the job ledger the watchdog needs: finding
// silent jobs and failing them.
type WatchdogLedger interface {
	FindStale(ctx context.Context, cutoff time.Time) ([]domain.Job, error)
	List(ctx context.Context, status domain.JobStatus, jobType domain.JobType, limit, offset int) ([]domain.Job, error)
	MarkFailed(ctx context.Context, id string, kind apperrors.Kind, message string) error
}

// Watchdog fails active jobs whose heartbeat has gone silent for longer than
// the configured timeout, so a crashed or partitioned worker cannot leave its
// job active forever. The guarded ledger transition makes the race with a
// still-alive worker safe: whichever side transitions first wins, and the
// loser's write is rejected.
type Watchdog struct {
	ledger   WatchdogLedger
	timeout  time.Duration
	interval time.Duration
	logger   *logger.Logger
}

// NewWatchdog creates a Watchdog.
// Parameters:
//   - ledger: job ledger to scan and fail jobs in.
//   - timeout: heartbeat silence after which a job is presumed dead.
//   - interval: time between scans.
//   - log: logger instance.
//
// Returns:
//   - *Watchdog: configured watchdog.
func NewWatchdog(ledger WatchdogLedger, timeout, interval time.Duration, log *logger.Logger) *Watchdog {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Watchdog{
		ledger:   ledger,
		timeout:  timeout,
		interval: interval,
		logger:   log,
	}
}

// Run scans the ledger on a ticker until the context is cancelled. It blocks,
// so callers run it in its own goroutine.
// Parameters:
//   - ctx: context whose cancellation stops the watchdog.
//
// Returns: none.
func (w *Watchdog) Run(ctx context.Context) {
	w.logger.WithFields(logger.Fields{
		"timeout":  w.timeout.String(),
		"interval": w.interval.String(),
	}).Info("Watchdog started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watchdog stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep fails every active job whose last heartbeat is older than the
// timeout. Safe to call concurrently with running workers.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//
// Returns:
//   - int: number of jobs failed by this sweep.
func (w *Watchdog) Sweep(ctx context.Context) int {
	cutoff := time.Now().UTC().Add(-w.timeout)
	stale, err := w.ledger.FindStale(ctx, cutoff)
	if err != nil {
		w.logger.Warnf("Watchdog scan failed: %v", err)
		return 0
	}

	failed := 0
	for _, job := range stale {
		msg := fmt.Sprintf("no heartbeat for %s, worker presumed dead", w.timeout)
		if err := w.ledger.MarkFailed(ctx, job.ID, apperrors.KindTimeout, msg); err != nil {
			// A conflict means the worker finished between the scan and the
			// write. That is the race resolving correctly, not a problem.
			if !apperrors.IsKind(err, apperrors.KindConflict) {
				w.logger.WithFields(logger.Fields{"job_id": job.ID}).Warnf("Watchdog could not fail job: %v", err)
			}
			continue
		}
		failed++
		w.logger.WithFields(logger.Fields{
			"job_id":      job.ID,
			"engine_name": job.EngineName,
		}).Warn("Watchdog failed silent job")
	}
	return failed
}

// SweepStartup fails jobs left over from a previous process: active jobs
// whose worker goroutine died with that process, and pending jobs that were
// never launched and have no other way to make progress. Run once at boot
// before the API starts accepting submissions.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//
// Returns:
//   - error: ledger failure while listing leftovers.
func (w *Watchdog) SweepStartup(ctx context.Context) error {
	// Every active job predates this process, so a cutoff of now catches
	// them all.
	stale, err := w.ledger.FindStale(ctx, time.Now().UTC())
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to list active jobs", err)
	}
	pending, err := w.ledger.List(ctx, domain.JobStatusPending, "", 0, 0)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to list pending jobs", err)
	}

	failed := 0
	for _, job := range append(stale, pending...) {
		msg := "build abandoned by a previous process"
		if err := w.ledger.MarkFailed(ctx, job.ID, apperrors.KindTimeout, msg); err != nil {
			if !apperrors.IsKind(err, apperrors.KindConflict) {
				w.logger.WithFields(logger.Fields{"job_id": job.ID}).Warnf("Startup sweep could not fail job: %v", err)
			}
			continue
		}
		failed++
	}

	if failed > 0 {
		w.logger.WithFields(logger.Fields{"count": failed}).Warn("Startup sweep failed abandoned jobs")
	}
	return nil
}
