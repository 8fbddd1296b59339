package domain

// Job status constants recorded in the journal
const (
	JobStatusPending      = "PENDING"
	JobStatusRunning      = "RUNNING"
	JobStatusCompleted    = "COMPLETED"
	JobStatusRetrying     = "RETRYING"
	JobStatusDeadLettered = "DEAD_LETTERED"
)

// Processing defaults
const (
	DefaultMaxAttempts  = 11
	DefaultMaxDimension = 256
)
