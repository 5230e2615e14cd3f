package logger

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Correlation fields carried on the context through a pipeline stage.
const (
	FieldRequestID      = "request_id"
	FieldJobID          = "job_id"
	FieldConversationID = "conversation_id"
	FieldMessageID      = "message_id"
	FieldQueue          = "queue"
	FieldComponent      = "component"
	FieldSourceURI      = "source_uri"
)

// Metric fields attached to single entries for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldAttempt    = "attempt"
	FieldStatus     = "status"
	FieldSize       = "size"
)
