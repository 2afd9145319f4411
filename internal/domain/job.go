package domain

import "time"

// Job is one question submitted by an owner and its eventual answer
type Job struct {
	JobID     string
	Owner     string
	Status    string
	Request   string
	Result    *string
	Links     []string
	CreatedAt time.Time
}

// IsCompleted reports whether the answer producer has finished the job
func (j *Job) IsCompleted() bool {
	return j != nil && j.Status == JobStatusCompleted
}

// CompletedJob is what the poller hands back once a job is COMPLETED
type CompletedJob struct {
	JobID  string
	Result *string
	Links  []string
}

// JobMessage is the broker payload announcing a new PENDING job
type JobMessage struct {
	Owner       string `json:"owner"`
	JobID       string `json:"job_id"`
	DeliveryTag uint64 `json:"-"`
}
