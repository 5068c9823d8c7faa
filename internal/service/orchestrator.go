package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/quernlabs/quern/internal/apperrors"
	"github.com/quernlabs/quern/internal/domain"
	"github.com/quernlabs/quern/internal/logger"
)

// maxEngineNameLen caps engine names so they stay usable as display labels
// and index keys.
const maxEngineNameLen = 200

// LedgerStore is the slice of the job ledger the orchestrator needs: creating
// records, reading them back for clients, and flagging cancellation.
type LedgerStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, status domain.JobStatus, jobType domain.JobType, limit, offset int) ([]domain.Job, error)
	RequestCancel(ctx context.Context, id string) error
	HasLiveBuild(ctx context.Context, ownerID, engineName string) (bool, error)
}

// EngineCatalog answers whether a committed engine already occupies a name.
type EngineCatalog interface {
	ExistsEngineName(ctx context.Context, ownerID, name string) (bool, error)
}

// ProviderCatalog resolves embedding provider names at submission time so bad
// llm_type values are rejected before a job record is ever written.
type ProviderCatalog interface {
	GetProvider(name string) (EmbeddingProvider, bool)
	DefaultName() string
}

// Launcher starts an independent unit of work for an accepted job. The
// orchestrator never waits on it; the job ledger is the only channel through
// which the outcome is observed.
type Launcher interface {
	Launch(job *domain.Job)
}

// BuildRequest carries the parameters of a build submission after transport
// decoding. LLMType may be empty, in which case the default provider is used.
type BuildRequest struct {
	DocumentRef string
	EngineName  string
	LLMType     string
	OwnerID     string
	IsPublic    bool
}

// Orchestrator accepts build submissions, records them in the job ledger, and
// hands them to a Launcher. It also serves job reads and cancellation, so the
// API layer talks to it for everything job-shaped.
type Orchestrator struct {
	ledger    LedgerStore
	engines   EngineCatalog
	providers ProviderCatalog
	launcher  Launcher
	logger    *logger.Logger
}

// NewOrchestrator creates an Orchestrator.
// Parameters:
//   - ledger: durable job ledger.
//   - engines: committed engine catalog for name conflict checks.
//   - providers: embedding provider catalog for llm_type validation.
//   - launcher: execution backend for accepted jobs.
//   - log: logger instance.
//
// Returns:
//   - *Orchestrator: configured orchestrator.
func NewOrchestrator(ledger LedgerStore, engines EngineCatalog, providers ProviderCatalog, launcher Launcher, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Orchestrator{
		ledger:    ledger,
		engines:   engines,
		providers: providers,
		launcher:  launcher,
		logger:    log,
	}
}

// log returns a logger from context if available, otherwise the default one
func (o *Orchestrator) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return o.logger
}

// Submit validates a build request, writes a pending ledger record, and
// launches the build. It returns the created job so callers can hand the ID
// back for polling.
//
// Name uniqueness is checked against both committed engines and live builds
// before the record is written, but the partial unique index on the ledger is
// what actually serializes concurrent duplicate submissions: the loser's
// Create comes back as a conflict.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: decoded build request.
//
// Returns:
//   - *domain.Job: the pending job record.
//   - error: validation or conflict error, or ledger failure.
func (o *Orchestrator) Submit(ctx context.Context, req *BuildRequest) (*domain.Job, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	exists, err := o.engines.ExistsEngineName(ctx, req.OwnerID, req.EngineName)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to check engine name", err)
	}
	if exists {
		return nil, apperrors.Newf(apperrors.KindConflict, "engine %q already exists", req.EngineName)
	}

	live, err := o.ledger.HasLiveBuild(ctx, req.OwnerID, req.EngineName)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to check live builds", err)
	}
	if live {
		return nil, apperrors.Newf(apperrors.KindConflict, "a build for engine %q is already in flight", req.EngineName)
	}

	job := &domain.Job{
		ID:          uuid.New().String(),
		Type:        domain.JobTypeBuildQueryEngine,
		Status:      domain.JobStatusPending,
		OwnerID:     req.OwnerID,
		EngineName:  req.EngineName,
		DocumentRef: req.DocumentRef,
		LLMType:     req.LLMType,
		IsPublic:    req.IsPublic,
	}
	if err := o.ledger.Create(ctx, job); err != nil {
		return nil, err
	}

	o.launcher.Launch(job)

	o.log(ctx).WithFields(logger.Fields{
		"job_id":      job.ID,
		"engine_name": job.EngineName,
		"llm_type":    job.LLMType,
		"owner_id":    job.OwnerID,
	}).Info("Build job accepted")

	return job, nil
}

// validate normalizes the request in place and rejects anything the pipeline
// could only fail on later.
func (o *Orchestrator) validate(req *BuildRequest) error {
	req.DocumentRef = strings.TrimSpace(req.DocumentRef)
	req.EngineName = strings.TrimSpace(req.EngineName)
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.LLMType = strings.TrimSpace(req.LLMType)

	if req.DocumentRef == "" {
		return apperrors.New(apperrors.KindValidation, "document_ref is required")
	}
	if req.EngineName == "" {
		return apperrors.New(apperrors.KindValidation, "engine_name is required")
	}
	if len(req.EngineName) > maxEngineNameLen {
		return apperrors.Newf(apperrors.KindValidation, "engine_name must be at most %d characters", maxEngineNameLen)
	}
	if req.OwnerID == "" {
		return apperrors.New(apperrors.KindValidation, "owner_id is required")
	}
	if req.LLMType == "" {
		req.LLMType = o.providers.DefaultName()
	}
	if _, ok := o.providers.GetProvider(req.LLMType); !ok {
		return apperrors.Newf(apperrors.KindValidation, "unsupported llm_type %q", req.LLMType)
	}
	return nil
}

// Status returns the current ledger record for a job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier.
//
// Returns:
//   - *domain.Job: the job record.
//   - error: not found or ledger failure.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*domain.Job, error) {
	return o.ledger.GetByID(ctx, jobID)
}

// Cancel requests cooperative cancellation of a job. The job keeps running
// until its worker observes the flag at the next checkpoint; a job already in
// a terminal state is rejected with a conflict.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier.
//
// Returns:
//   - error: not found, conflict, or ledger failure.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	if err := o.ledger.RequestCancel(ctx, jobID); err != nil {
		return err
	}
	o.log(ctx).WithFields(logger.Fields{"job_id": jobID}).Info("Cancellation requested")
	return nil
}

// ListJobs returns ledger records filtered by status and type, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: optional status filter, empty for all.
//   - jobType: optional type filter, empty for all.
//   - limit: maximum records to return.
//   - offset: records to skip.
//
// Returns:
//   - []domain.Job: matching jobs.
//   - error: ledger failure.
func (o *Orchestrator) ListJobs(ctx context.Context, status domain.JobStatus, jobType domain.JobType, limit, offset int) ([]domain.Job, error) {
	return o.ledger.List(ctx, status, jobType, limit, offset)
}
