package service

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/quernlabs/quern/internal/apperrors"
	"github.com/quernlabs/quern/internal/domain"
	"github.com/quernlabs/quern/internal/logger"
)

// fakeOrchLedger is an in-memory LedgerStore. Create enforces the same
// one-live-build-per-name rule the ledger's partial unique index does, which
// is what serializes concurrent duplicate submissions.
type fakeOrchLedger struct {
	mu        sync.Mutex
	jobs      []*domain.Job
	hasLive   bool
	createErr error
	cancelled []string
	cancelErr error

	listStatus domain.JobStatus
	listType   domain.JobType
	listLimit  int
	listOffset int
}

func (f *fakeOrchLedger) Create(ctx context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, j := range f.jobs {
		if j.OwnerID == job.OwnerID && j.EngineName == job.EngineName && !j.Status.Terminal() {
			return apperrors.Newf(apperrors.KindConflict, "a build for engine %q is already in flight", job.EngineName)
		}
	}
	j := *job
	f.jobs = append(f.jobs, &j)
	return nil
}

func (f *fakeOrchLedger) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ID == id {
			out := *j
			return &out, nil
		}
	}
	return nil, apperrors.Newf(apperrors.KindNotFound, "job %q not found", id)
}

func (f *fakeOrchLedger) List(ctx context.Context, status domain.JobStatus, jobType domain.JobType, limit, offset int) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listStatus, f.listType, f.listLimit, f.listOffset = status, jobType, limit, offset
	out := make([]domain.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		if status != "" && j.Status != status {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeOrchLedger) RequestCancel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeOrchLedger) HasLiveBuild(ctx context.Context, ownerID, engineName string) (bool, error) {
	return f.hasLive, nil
}

func (f *fakeOrchLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type fakeEngineCatalog struct {
	exists bool
	err    error
}

func (f *fakeEngineCatalog) ExistsEngineName(ctx context.Context, ownerID, name string) (bool, error) {
	return f.exists, f.err
}

type fakeProviderCatalog struct {
	providers   map[string]EmbeddingProvider
	defaultName string
}

func (f *fakeProviderCatalog) GetProvider(name string) (EmbeddingProvider, bool) {
	p, ok := f.providers[name]
	return p, ok
}

func (f *fakeProviderCatalog) DefaultName() string { return f.defaultName }

type fakeLauncher struct {
	mu       sync.Mutex
	launched []*domain.Job
}

func (f *fakeLauncher) Launch(job *domain.Job) {
	f.mu.Lock()
	f.launched = append(f.launched, job)
	f.mu.Unlock()
}

func (f *fakeLauncher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.launched)
}

type orchFixture struct {
	ledger   *fakeOrchLedger
	engines  *fakeEngineCatalog
	launcher *fakeLauncher
	orch     *Orchestrator
}

func newOrchFixture() *orchFixture {
	f := &orchFixture{
		ledger:   &fakeOrchLedger{},
		engines:  &fakeEngineCatalog{},
		launcher: &fakeLauncher{},
	}
	providers := &fakeProviderCatalog{
		providers: map[string]EmbeddingProvider{
			"vertex": &fakeProvider{dimension: 4},
			"jina":   &fakeProvider{dimension: 8},
		},
		defaultName: "vertex",
	}
	log := logger.New(&logger.Config{Level: "error", Output: io.Discard, ServiceName: "test"})
	f.orch = NewOrchestrator(f.ledger, f.engines, providers, f.launcher, log)
	return f
}

func buildRequest() *BuildRequest {
	return &BuildRequest{
		DocumentRef: "documents/handbook.txt",
		EngineName:  "handbook",
		LLMType:     "vertex",
		OwnerID:     "owner-1",
	}
}

func TestOrchestratorSubmitAccepted(t *testing.T) {
	fix := newOrchFixture()

	job, err := fix.orch.Submit(context.Background(), buildRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID == "" {
		t.Error("expected a job id")
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("expected pending, got %q", job.Status)
	}
	if job.Type != domain.JobTypeBuildQueryEngine {
		t.Errorf("unexpected type %q", job.Type)
	}

	if fix.ledger.count() != 1 {
		t.Errorf("expected one ledger record, got %d", fix.ledger.count())
	}
	if fix.launcher.count() != 1 {
		t.Fatalf("expected one launch, got %d", fix.launcher.count())
	}
	if fix.launcher.launched[0].ID != job.ID {
		t.Error("launched job does not match the created record")
	}
}

func TestOrchestratorSubmitValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*BuildRequest)
		wantMsg string
	}{
		{
			name:    "missing document_ref",
			mutate:  func(r *BuildRequest) { r.DocumentRef = "  " },
			wantMsg: "document_ref is required",
		},
		{
			name:    "missing engine_name",
			mutate:  func(r *BuildRequest) { r.EngineName = "" },
			wantMsg: "engine_name is required",
		},
		{
			name:    "engine_name too long",
			mutate:  func(r *BuildRequest) { r.EngineName = strings.Repeat("n", 201) },
			wantMsg: "engine_name must be at most 200 characters",
		},
		{
			name:    "missing owner_id",
			mutate:  func(r *BuildRequest) { r.OwnerID = "\t" },
			wantMsg: "owner_id is required",
		},
		{
			name:    "unknown llm_type",
			mutate:  func(r *BuildRequest) { r.LLMType = "gpt-99" },
			wantMsg: `unsupported llm_type "gpt-99"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fix := newOrchFixture()
			req := buildRequest()
			tc.mutate(req)

			_, err := fix.orch.Submit(context.Background(), req)
			if err == nil {
				t.Fatal("expected error")
			}
			if kind := apperrors.KindOf(err); kind != apperrors.KindValidation {
				t.Errorf("expected validation, got %q", kind)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("expected message containing %q, got %q", tc.wantMsg, err.Error())
			}
			if fix.ledger.count() != 0 {
				t.Error("no ledger record may be written for an invalid request")
			}
			if fix.launcher.count() != 0 {
				t.Error("nothing may be launched for an invalid request")
			}
		})
	}
}

func TestOrchestratorSubmitDefaultsProvider(t *testing.T) {
	fix := newOrchFixture()
	req := buildRequest()
	req.LLMType = ""

	job, err := fix.orch.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.LLMType != "vertex" {
		t.Errorf("expected the default provider, got %q", job.LLMType)
	}
}

func TestOrchestratorSubmitTrimsFields(t *testing.T) {
	fix := newOrchFixture()
	req := &BuildRequest{
		DocumentRef: "  documents/handbook.txt ",
		EngineName:  " handbook\n",
		LLMType:     " jina ",
		OwnerID:     " owner-1 ",
	}

	job, err := fix.orch.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.DocumentRef != "documents/handbook.txt" || job.EngineName != "handbook" ||
		job.LLMType != "jina" || job.OwnerID != "owner-1" {
		t.Errorf("fields not normalized: %+v", job)
	}
}

func TestOrchestratorSubmitRejectsCommittedName(t *testing.T) {
	fix := newOrchFixture()
	fix.engines.exists = true

	_, err := fix.orch.Submit(context.Background(), buildRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := apperrors.KindOf(err); kind != apperrors.KindConflict {
		t.Errorf("expected conflict, got %q", kind)
	}
	if fix.ledger.count() != 0 || fix.launcher.count() != 0 {
		t.Error("a rejected submission must not create or launch a job")
	}
}

func TestOrchestratorSubmitRejectsLiveBuild(t *testing.T) {
	fix := newOrchFixture()
	fix.ledger.hasLive = true

	_, err := fix.orch.Submit(context.Background(), buildRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := apperrors.KindOf(err); kind != apperrors.KindConflict {
		t.Errorf("expected conflict, got %q", kind)
	}
	if fix.ledger.count() != 0 || fix.launcher.count() != 0 {
		t.Error("a rejected submission must not create or launch a job")
	}
}

func TestOrchestratorSubmitConcurrentDuplicates(t *testing.T) {
	// Both submissions pass the pre-checks; the ledger's uniqueness rule
	// decides the winner.
	fix := newOrchFixture()

	const submitters = 8
	var wg sync.WaitGroup
	errs := make([]error, submitters)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fix.orch.Submit(context.Background(), buildRequest())
		}(i)
	}
	wg.Wait()

	var accepted, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			accepted++
		case apperrors.KindOf(err) == apperrors.KindConflict:
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if accepted != 1 {
		t.Errorf("expected exactly one accepted submission, got %d", accepted)
	}
	if conflicts != submitters-1 {
		t.Errorf("expected %d conflicts, got %d", submitters-1, conflicts)
	}
	if fix.launcher.count() != 1 {
		t.Errorf("expected exactly one launch, got %d", fix.launcher.count())
	}
}

func TestOrchestratorStatus(t *testing.T) {
	fix := newOrchFixture()
	job, err := fix.orch.Submit(context.Background(), buildRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := fix.orch.Status(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != job.ID || got.EngineName != "handbook" {
		t.Errorf("unexpected job: %+v", got)
	}

	if _, err := fix.orch.Status(context.Background(), "nope"); apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestOrchestratorCancel(t *testing.T) {
	fix := newOrchFixture()

	if err := fix.orch.Cancel(context.Background(), "job-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fix.ledger.cancelled) != 1 || fix.ledger.cancelled[0] != "job-1" {
		t.Errorf("unexpected cancel calls: %v", fix.ledger.cancelled)
	}

	fix.ledger.cancelErr = apperrors.New(apperrors.KindConflict, "job job-1 is succeeded, cannot cancel")
	if err := fix.orch.Cancel(context.Background(), "job-1"); apperrors.KindOf(err) != apperrors.KindConflict {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestOrchestratorListJobsForwardsFilters(t *testing.T) {
	fix := newOrchFixture()

	_, err := fix.orch.ListJobs(context.Background(), domain.JobStatusPending, domain.JobTypeBuildQueryEngine, 20, 40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fix.ledger.listStatus != domain.JobStatusPending || fix.ledger.listType != domain.JobTypeBuildQueryEngine {
		t.Errorf("filters not forwarded: status=%q type=%q", fix.ledger.listStatus, fix.ledger.listType)
	}
	if fix.ledger.listLimit != 20 || fix.ledger.listOffset != 40 {
		t.Errorf("paging not forwarded: limit=%d offset=%d", fix.ledger.listLimit, fix.ledger.listOffset)
	}
}
