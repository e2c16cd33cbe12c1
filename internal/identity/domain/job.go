package domain

import "time"

// JobStatus is the durable state of a queued job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	// JobDead marks a job that exhausted its retries or whose referenced
	// entity no longer exists. Dead jobs are kept for inspection.
	JobDead JobStatus = "dead"
)

// Job is a durable envelope on the async backbone. Payloads carry entity IDs,
// not snapshots; handlers re-fetch current state when they run.
type Job struct {
	ID      string
	Queue   string
	Payload []byte // JSON-encoded, schema fixed per queue
	Status  JobStatus
	// Attempts counts processing attempts so far, successful or not.
	Attempts int
	// NextAttemptAt is when the job becomes due; pushed forward on failure
	// per the backoff policy.
	NextAttemptAt time.Time
	// LeaseExpiresAt guards against concurrent delivery: a pending job with a
	// live lease is invisible to other workers. At-least-once still applies
	// if a worker dies mid-lease.
	LeaseExpiresAt *time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
