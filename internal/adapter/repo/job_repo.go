package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"agrinix/internal/domain"
	"agrinix/internal/infra"
	"agrinix/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new waiting job.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	nextRun := job.NextRunAt
	if nextRun.IsZero() {
		nextRun = job.SubmittedAt
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertDetectionJob,
		job.ID,
		job.OwnerID,
		string(job.State),
		job.Attempts,
		job.Input.Image,
		job.Input.MimeType,
		job.Input.Filename,
		job.Region,
		job.SubmittedAt,
		nextRun,
	)
	return classify("create job", err)
}

// Claim moves the oldest runnable waiting job to active.
func (r *JobRepositoryPG) Claim(ctx context.Context, now time.Time) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QWorkerClaimJob, now))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNoJobAvailable
		}
		return nil, classify("claim job", err)
	}
	return job, nil
}

// Transition applies a guarded state change.
func (r *JobRepositoryPG) Transition(ctx context.Context, jobID string, t domain.Transition) error {
	if !domain.CanTransition(t.From, t.To) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.From, t.To)
	}
	var result any
	if t.Result != nil {
		raw, err := json.Marshal(t.Result)
		if err != nil {
			return fmt.Errorf("encode job result: %w", err)
		}
		result = raw
	}
	var runAt any
	if !t.RunAt.IsZero() {
		runAt = t.RunAt
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QTransitionDetectionJob,
		jobID,
		string(t.From),
		string(t.To),
		result,
		t.Reason,
		runAt,
		t.At,
	)
	if err != nil {
		return classify("transition job", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

// SaveImageRef records the uploaded image on the job so retries skip the upload.
func (r *JobRepositoryPG) SaveImageRef(ctx context.Context, jobID string, ref domain.ImageRef) error {
	_, err := r.sql.Exec(ctx, sqlinline.QSaveJobImage, jobID, ref.URL, ref.PublicID)
	return classify("save job image", err)
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectDetectionJob, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, classify("get job", err)
	}
	return job, nil
}

// ListByOwner returns the owner's most recent jobs.
func (r *JobRepositoryPG) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListDetectionJobsByOwner, ownerID, limit)
	if err != nil {
		return nil, classify("list jobs", err)
	}
	return collectJobs(rows)
}

// ListStale returns active jobs whose lease started before cutoff.
func (r *JobRepositoryPG) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListStaleDetectionJobs, cutoff)
	if err != nil {
		return nil, classify("list stale jobs", err)
	}
	return collectJobs(rows)
}

// PurgeFinished deletes terminal jobs finished before cutoff.
func (r *JobRepositoryPG) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QPurgeFinishedDetectionJobs, cutoff)
	if err != nil {
		return 0, classify("purge jobs", err)
	}
	return tag.RowsAffected(), nil
}

func collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, classify("scan job", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate jobs", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job        domain.Job
		state      string
		resultJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&state,
		&job.Attempts,
		&job.Input.Image,
		&job.Input.MimeType,
		&job.Input.Filename,
		&job.Image.URL,
		&job.Image.PublicID,
		&job.Region,
		&resultJSON,
		&job.FailureReason,
		&job.SubmittedAt,
		&job.StartedAt,
		&job.FinishedAt,
		&job.NextRunAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.State = domain.JobState(state)
	if len(resultJSON) > 0 {
		var result domain.JobResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
		job.Result = &result
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
