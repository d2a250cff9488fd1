package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending             JobStatus = "pending"
	JobStatusProcessing          JobStatus = "processing"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
	JobStatusFailed              JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed:
		return true
	}
	return false
}

// PagePrompt is one page of a story batch that still needs an image.
type PagePrompt struct {
	PageID     string `json:"pageId"`
	PromptText string `json:"promptText"`
}

// Job tracks the background generation of a batch of page images.
type Job struct {
	ID           string
	BatchKey     string
	Pages        []PagePrompt
	Status       JobStatus
	Progress     int
	// FailedImages counts pages that fell back, so a resumed run keeps them.
	FailedImages int
	TotalImages  int
	GradeLevel   *int
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// NewJobParams carries the inputs of JobStore.CreateJob.
type NewJobParams struct {
	BatchKey   string
	Pages      []PagePrompt
	GradeLevel *int
}

// JobUpdate is a partial update. Nil fields are left untouched.
type JobUpdate struct {
	Status       *JobStatus
	Progress     *int
	FailedImages *int
	ErrorMessage *string
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// StatusUpdate builds an update that only moves the status.
func StatusUpdate(status JobStatus, at time.Time) JobUpdate {
	return JobUpdate{Status: &status, UpdatedAt: at}
}
