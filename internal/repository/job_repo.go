package repository

import (
	"context"
	"errors"
	"time"

	"github.com/quernlabs/quern/internal/apperrors"
	"github.com/quernlabs/quern/internal/domain"
	"gorm.io/gorm"
)

// JobRepository is the durable job ledger. All status transitions go through
// guarded updates keyed by job id and expected predecessor status, so a
// transition is exactly one write and an out-of-order writer affects zero
// rows instead of regressing the state machine.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record. A second live build for the same
// (owner, engine name) pair violates the reservation index and is reported
// as a conflict.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
// Returns:
//   - error: conflict if the engine name is already reserved, otherwise the insert error.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Wrapf(apperrors.KindConflict, err,
				"a build for engine %q is already in flight", job.EngineName)
		}
		return err
	}
	return nil
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.Job: job record if found.
//   - error: not-found if no such job, otherwise the lookup error.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "job %s not found", id)
		}
		return nil, err
	}
	return &job, nil
}

// List retrieves jobs filtered by status and type with pagination, newest
// first. Empty filter values match everything; a non-positive limit returns
// all matching rows.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: job status to filter by; empty means all.
//   - jobType: job type to filter by; empty means all.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Job: matching job records.
//   - error: non-nil if the query fails.
func (r *JobRepository) List(ctx context.Context, status domain.JobStatus, jobType domain.JobType, limit, offset int) ([]domain.Job, error) {
	query := r.db.WithContext(ctx).Model(&domain.Job{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if jobType != "" {
		query = query.Where("type = ?", jobType)
	}
	query = query.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var jobs []domain.Job
	if err := query.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// MarkActive transitions a pending job to active and stamps the start time
// and first heartbeat.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - error: conflict if the job is not pending, otherwise the update error.
func (r *JobRepository) MarkActive(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.transition(ctx, id, []domain.JobStatus{domain.JobStatusPending}, map[string]interface{}{
		"status":         domain.JobStatusActive,
		"started_at":     now,
		"last_heartbeat": now,
	})
}

// MarkSucceeded transitions an active job to succeeded and records the
// resulting engine id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - engineID: ID of the query engine the build produced.
// Returns:
//   - error: conflict if the job is not active, otherwise the update error.
func (r *JobRepository) MarkSucceeded(ctx context.Context, id, engineID string) error {
	return r.transition(ctx, id, []domain.JobStatus{domain.JobStatusActive}, map[string]interface{}{
		"status":           domain.JobStatusSucceeded,
		"result_engine_id": engineID,
		"finished_at":      time.Now().UTC(),
	})
}

// MarkFailed transitions a pending or active job to failed with a structured
// error payload. A FAILED record always carries a non-empty error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - kind: error classification persisted with the job.
//   - message: human-readable failure description.
// Returns:
//   - error: conflict if the job is already terminal, otherwise the update error.
func (r *JobRepository) MarkFailed(ctx context.Context, id string, kind apperrors.Kind, message string) error {
	if message == "" {
		message = "build failed"
	}
	return r.transition(ctx, id,
		[]domain.JobStatus{domain.JobStatusPending, domain.JobStatusActive},
		map[string]interface{}{
			"status":        domain.JobStatusFailed,
			"error_kind":    string(kind),
			"error_message": message,
			"finished_at":   time.Now().UTC(),
		})
}

// transition performs a single guarded status update. Zero affected rows
// means the job either does not exist or is not in an allowed predecessor
// state; the distinction is resolved with a follow-up read.
func (r *JobRepository) transition(ctx context.Context, id string, from []domain.JobStatus, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return apperrors.Newf(apperrors.KindConflict,
			"job %s is %s, cannot transition to %v", id, current.Status, updates["status"])
	}
	return nil
}

// Heartbeat refreshes the liveness timestamp of an active job. Not a status
// transition; the watchdog uses the timestamp to distinguish a long-running
// build from a stalled one. A job that is no longer active rejects the
// heartbeat, which tells a worker it has lost ownership.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - error: conflict if the job is not active, otherwise the update error.
func (r *JobRepository) Heartbeat(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.JobStatusActive).
		Update("last_heartbeat", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return apperrors.Newf(apperrors.KindConflict,
			"job %s is %s, heartbeat rejected", id, current.Status)
	}
	return nil
}

// RequestCancel sets the cooperative cancellation flag on a live job. The
// worker observes the flag between pipeline stages.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - error: not-found if no such job, conflict if the job is already terminal.
func (r *JobRepository) RequestCancel(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status IN ?", id,
			[]domain.JobStatus{domain.JobStatusPending, domain.JobStatusActive}).
		Update("cancel_requested", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return apperrors.Newf(apperrors.KindConflict,
			"job %s is already %s", id, current.Status)
	}
	return nil
}

// CancelRequested reports whether cancellation has been requested for a job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - bool: true if a client requested cancellation.
//   - error: non-nil if the lookup fails.
func (r *JobRepository) CancelRequested(ctx context.Context, id string) (bool, error) {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return job.CancelRequested, nil
}

// FindStale returns active jobs whose last heartbeat is older than the
// cutoff. Jobs that never heartbeated fall back to their start time.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: heartbeats older than this instant count as stale.
// Returns:
//   - []domain.Job: stalled active jobs.
//   - error: non-nil if the query fails.
func (r *JobRepository) FindStale(ctx context.Context, cutoff time.Time) ([]domain.Job, error) {
	var jobs []domain.Job
	if err := r.db.WithContext(ctx).
		Where("status = ?", domain.JobStatusActive).
		Where("COALESCE(last_heartbeat, started_at, created_at) < ?", cutoff).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// HasLiveBuild checks whether a non-terminal build already holds the given
// engine name for the owner.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: owner scope for the name.
//   - engineName: requested engine name.
// Returns:
//   - bool: true if a pending or active build holds the name.
//   - error: non-nil if the lookup fails.
func (r *JobRepository) HasLiveBuild(ctx context.Context, ownerID, engineName string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("owner_id = ? AND engine_name = ? AND status IN ?", ownerID, engineName,
			[]domain.JobStatus{domain.JobStatusPending, domain.JobStatusActive}).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
