package logger

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the bulk ingest job ID
	FieldJobID = "job_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldAssetID is the caller-supplied asset identifier
	FieldAssetID = "asset_id"

	// FieldProvider names the external provider handling a call
	FieldProvider = "provider"

	// FieldStage is the analysis stage (moderate, describe, embed, index)
	FieldStage = "stage"

	// FieldSource is the ingest source identifier
	FieldSource = "source"
)

// Metric fields, attached per entry for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
	FieldScore      = "score"
)
