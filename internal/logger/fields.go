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

	// FieldJobID is the ETL job ID
	FieldJobID = "job_id"

	// FieldScriptID is the extraction script ID
	FieldScriptID = "script_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldEvent is the push channel event name
	FieldEvent = "event"
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

	// FieldRows is a processed-row count
	FieldRows = "rows"

	// FieldBatch is the current batch index
	FieldBatch = "batch"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
