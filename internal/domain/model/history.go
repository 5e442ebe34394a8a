package model

import "time"

type JobStatus string

const (
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobRecord is the audit entry written once a job reaches a terminal state.
type JobRecord struct {
	JobID       string
	RequesterID int64
	Kind        InputKind
	Source      string
	FileName    string
	Status      JobStatus
	Result      string
	Error       string
	EnqueuedAt  time.Time
	FinishedAt  time.Time
}

func NewJobRecord(job Job) *JobRecord {
	return &JobRecord{
		JobID:       job.ID,
		RequesterID: job.RequesterID,
		Kind:        job.Input.Kind,
		Source:      job.Input.Source(),
		EnqueuedAt:  job.EnqueuedAt,
	}
}

func (r *JobRecord) Complete(fileName, token string) {
	r.FileName = fileName
	r.Status = JobStatusCompleted
	r.Result = token
	r.FinishedAt = time.Now()
}

func (r *JobRecord) Fail(err error) {
	r.Status = JobStatusFailed
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = time.Now()
}
