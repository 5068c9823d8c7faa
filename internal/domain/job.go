package domain

import "time"

// JobStatus represents the status of a build job.
// Values include JobStatusPending, JobStatusActive, JobStatusSucceeded, and JobStatusFailed.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is final. No transition leaves a
// terminal status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// CanTransition reports whether the state machine permits moving from s to
// next. Transitions are monotonic: pending → active → succeeded|failed, with
// pending → failed allowed for jobs that die before their worker starts.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusActive || next == JobStatusFailed
	case JobStatusActive:
		return next == JobStatusSucceeded || next == JobStatusFailed
	default:
		return false
	}
}

// JobType represents the kind of work a job performs.
// Values include JobTypeBuildQueryEngine.
type JobType string

const (
	JobTypeBuildQueryEngine JobType = "build-query-engine"
)

// Job is the durable ledger record for one build invocation. The ledger is
// the source of truth for job outcome: workers report progress and terminal
// state here, and clients poll it, so the record carries both the build
// request parameters and the result.
type Job struct {
	ID              string     `gorm:"type:text;primaryKey" json:"id"`
	Type            JobType    `gorm:"type:text;not null;index" json:"type"`
	Status          JobStatus  `gorm:"type:text;default:pending;index" json:"status"`
	OwnerID         string     `gorm:"type:text;not null;index" json:"owner_id"`
	EngineName      string     `gorm:"type:text;not null;index" json:"engine_name"`
	DocumentRef     string     `gorm:"type:text;not null" json:"document_ref"`
	LLMType         string     `gorm:"type:text;not null" json:"llm_type"`
	IsPublic        bool       `gorm:"default:false" json:"is_public"`
	ErrorKind       string     `gorm:"type:text" json:"error_kind,omitempty"`
	ErrorMessage    string     `gorm:"type:text" json:"error_message,omitempty"`
	ResultEngineID  string     `gorm:"type:text" json:"result_engine_id,omitempty"`
	CancelRequested bool       `gorm:"default:false" json:"cancel_requested"`
	LastHeartbeat   *time.Time `json:"last_heartbeat,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Job.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Job) TableName() string {
	return "jobs"
}
