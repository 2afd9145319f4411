package domain

import "time"

// Job status constants. A job is created PENDING and moves to COMPLETED exactly once.
const (
	JobStatusPending   = "PENDING"
	JobStatusCompleted = "COMPLETED"
)

// Polling defaults for a single inbound request
const (
	DefaultMaxAttempts  = 100
	DefaultPollInterval = 500 * time.Millisecond
)
