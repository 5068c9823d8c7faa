package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the build job ID
	FieldJobID = "job_id"

	// FieldEngineID is the query engine ID
	FieldEngineID = "engine_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldStage is the pipeline stage currently executing
	FieldStage = "stage"

	// FieldOwnerID is the requesting user ID
	FieldOwnerID = "owner_id"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldAttempt is the retry attempt number
	FieldAttempt = "attempt"
)
