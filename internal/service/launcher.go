package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/quernlabs/quern/internal/apperrors"
	"github.com/quernlabs/quern/internal/domain"
	"github.com/quernlabs/quern/internal/logger"
)

// crashLedger is the slice of the job ledger the launcher needs to record a
// panicked worker.
type crashLedger interface {
	MarkFailed(ctx context.Context, id string, kind apperrors.Kind, message string) error
}

// GoroutineLauncher runs each accepted job in its own goroutine with an
// isolated failure domain: a panic in one build is recovered, recorded in the
// ledger, and never takes down the process or a sibling build.
//
// Workers derive from the base context given at construction, so cancelling
// it (typically on shutdown) makes every in-flight build fail fast at its
// next checkpoint instead of leaving stale active ledger rows behind.
type GoroutineLauncher struct {
	pipeline *BuildPipeline
	ledger   crashLedger
	logger   *logger.Logger
	baseCtx  context.Context
	wg       sync.WaitGroup
}

// NewGoroutineLauncher creates a GoroutineLauncher.
// Parameters:
//   - baseCtx: parent context for all launched builds.
//   - pipeline: build pipeline executed per job.
//   - ledger: job ledger used to record panics.
//   - log: logger instance.
//
// Returns:
//   - *GoroutineLauncher: configured launcher.
func NewGoroutineLauncher(baseCtx context.Context, pipeline *BuildPipeline, ledger crashLedger, log *logger.Logger) *GoroutineLauncher {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &GoroutineLauncher{
		pipeline: pipeline,
		ledger:   ledger,
		logger:   log,
		baseCtx:  baseCtx,
	}
}

// Launch starts the build for job in a new goroutine and returns immediately.
// The outcome lands in the job ledger; callers poll that, not the launcher.
func (l *GoroutineLauncher) Launch(job *domain.Job) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.recoverPanic(job)
		// Run records its own outcome in the ledger.
		_ = l.pipeline.Run(l.baseCtx, job)
	}()
}

// Wait blocks until every launched build has finished. Called during
// shutdown after the base context is cancelled.
func (l *GoroutineLauncher) Wait() {
	l.wg.Wait()
}

// recoverPanic converts a worker panic into a failed ledger record. It uses a
// fresh context because the base context may already be cancelled.
func (l *GoroutineLauncher) recoverPanic(job *domain.Job) {
	r := recover()
	if r == nil {
		return
	}

	l.logger.WithFields(logger.Fields{
		"job_id": job.ID,
		"panic":  fmt.Sprintf("%v", r),
	}).Errorf("Build worker panicked: %s", debug.Stack())

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := l.ledger.MarkFailed(ctx, job.ID, apperrors.KindInternal, fmt.Sprintf("build panicked: %v", r)); err != nil {
		l.logger.WithFields(logger.Fields{"job_id": job.ID}).Warnf("Failed to record panic in ledger: %v", err)
	}
}
