package domain

import "time"

// JobStatus represents the processing state of a job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Job is one submitted URL and the record of its pipeline run.
type Job struct {
	ID        int64
	URL       string
	Format    string
	Quality   string
	Status    JobStatus
	Title     string
	VideoID   string
	Artifact  string
	Warnings  []string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Options returns the extraction options recorded for the job.
func (j *Job) Options() Options {
	return Options{Format: j.Format, Quality: j.Quality}.Normalize()
}

// Active reports whether the job is still queued or running.
func (j *Job) Active() bool {
	return j.Status == StatusPending || j.Status == StatusProcessing
}

// Done reports whether the job produced an artifact.
func (j *Job) Done() bool {
	return j.Status == StatusCompleted && j.Artifact != ""
}

// ProgressLine is one status line recorded during a run.
type ProgressLine struct {
	Seq       int64
	Line      string
	CreatedAt time.Time
}
