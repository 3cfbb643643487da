package domain

import (
	"context"
	"time"
)

// JobRepository is the durable queue backing store.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	// Claim atomically moves the oldest runnable waiting job to active and
	// increments its attempt count. It returns ErrNoJobAvailable when idle.
	Claim(ctx context.Context, now time.Time) (*Job, error)
	// Transition applies t only if the job is still in t.From; otherwise it
	// returns ErrStaleTransition.
	Transition(ctx context.Context, jobID string, t Transition) error
	SaveImageRef(ctx context.Context, jobID string, ref ImageRef) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// ListByOwner returns the owner's jobs, newest first, without input bytes.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Job, error)
	// ListStale returns active jobs whose current attempt started before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]Job, error)
	// PurgeFinished deletes terminal jobs finished before cutoff.
	PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error)
}

// RecordStore is the relational collaborator that owns users, crops and
// diagnoses.
type RecordStore interface {
	FindOwner(ctx context.Context, ownerID string) (bool, error)
	// CreateDiagnosis writes at most one diagnosis per job. A repeated call
	// for the same jobID returns the id written the first time.
	CreateDiagnosis(ctx context.Context, jobID, ownerID string, prediction NormalizedPrediction, info DiseaseInfo, image ImageRef) (string, error)
}

// OwnerRegistry provisions owner accounts.
type OwnerRegistry interface {
	UpsertOwner(ctx context.Context, owner Owner) error
}

// ImageStore uploads raw image bytes and returns a public reference.
type ImageStore interface {
	Upload(ctx context.Context, data []byte, mimeType string) (ImageRef, error)
}
