package domain

// JobStatus tracks a detection job through its lifecycle.
// Transitions are pending -> running -> done|failed; running is never skipped.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// DetectionJob is the control-plane record for one background detection run.
// Jobs are ephemeral: they live in the scheduler's tracker, not in storage.
type DetectionJob struct {
	FactID   string    `json:"fact_id"`
	Status   JobStatus `json:"status"`
	Err      string    `json:"error,omitempty"`
	Attempts int       `json:"attempts"`
}
