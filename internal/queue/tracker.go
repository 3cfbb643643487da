package queue

import (
	"context"
	"strings"
	"time"

	"agrinix/internal/domain"
)

// DefaultListLimit caps ListJobs when no limit is configured.
const DefaultListLimit = 100

// Status is the externally visible projection of one job.
type Status struct {
	JobID         string            `json:"jobId"`
	OwnerID       string            `json:"-"`
	State         domain.JobState   `json:"status"`
	Attempts      int               `json:"attempts"`
	Result        *domain.JobResult `json:"result"`
	FailureReason string            `json:"failureReason,omitempty"`
	ImageURL      string            `json:"imageUrl,omitempty"`
	SubmittedAt   time.Time         `json:"submittedAt"`
	StartedAt     *time.Time        `json:"startedAt,omitempty"`
	FinishedAt    *time.Time        `json:"finishedAt,omitempty"`
}

// Tracker reads job state straight from the store. It holds no cache, so it
// is safe to use while workers are mutating jobs.
type Tracker struct {
	jobs  domain.JobRepository
	limit int
}

func NewTracker(jobs domain.JobRepository, limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return &Tracker{jobs: jobs, limit: limit}
}

// GetStatus returns domain.ErrNotFound for unknown or purged jobs.
func (t *Tracker) GetStatus(ctx context.Context, jobID string) (*Status, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, &domain.ValidationError{Field: "jobId", Message: "job id is required"}
	}
	job, err := t.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrNotFound
	}
	status := statusOf(*job)
	return &status, nil
}

// ListJobs returns the owner's jobs, newest first.
func (t *Tracker) ListJobs(ctx context.Context, ownerID string) ([]Status, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, &domain.ValidationError{Field: "ownerId", Message: "owner is required"}
	}
	jobs, err := t.jobs.ListByOwner(ctx, ownerID, t.limit)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, statusOf(job))
	}
	return out, nil
}

func statusOf(job domain.Job) Status {
	s := Status{
		JobID:       job.ID,
		OwnerID:     job.OwnerID,
		State:       job.State,
		Attempts:    job.Attempts,
		ImageURL:    job.Image.URL,
		SubmittedAt: job.SubmittedAt,
		StartedAt:   job.StartedAt,
		FinishedAt:  job.FinishedAt,
	}
	switch job.State {
	case domain.JobStateCompleted:
		s.Result = job.Result
	case domain.JobStateFailed:
		s.FailureReason = job.FailureReason
	}
	return s
}
