package domain

import "time"

// JobStatus enumerates video job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// ParseJobStatus validates a caller-supplied status string.
func ParseJobStatus(s string) (JobStatus, bool) {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return JobStatus(s), true
	}
	return "", false
}

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// VideoJob encapsulates one video generation request through its whole
// lifecycle. It is created at admission time with the cost already debited
// and mutated only by the lifecycle manager afterwards.
type VideoJob struct {
	ID       string
	UserID   string
	Provider string
	ImageID  string

	Prompt          string
	DurationSeconds int
	Width           int
	Height          int
	FPS             int
	ProviderParams  map[string]any

	Status        JobStatus
	Progress      int
	ProviderJobID string
	ErrorMessage  string

	ArtifactKey    string
	FileSize       int64
	ActualDuration float64

	CreditsCost     Credits
	CreditsRefunded Credits

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}
