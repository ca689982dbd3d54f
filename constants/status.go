package constants

// JobStatus is the canonical status for rows in processing_jobs and
// schema_suggestions.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending    JobStatus = "pending"    // accepted, not yet claimed
	JobStatusProcessing JobStatus = "processing" // claimed by a worker
	JobStatusCompleted  JobStatus = "completed"  // terminal success
	JobStatusFailed     JobStatus = "failed"     // failure; terminal once retries are exhausted
	JobStatusRetrying   JobStatus = "retrying"   // waiting out backoff before re-entering processing
)

// Active reports whether the status is non-terminal.
func (s JobStatus) Active() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusRetrying:
		return true
	}
	return false
}
