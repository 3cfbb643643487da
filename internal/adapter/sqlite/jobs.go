package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agrinix/internal/domain"
)

// JobStore implements domain.JobRepository on SQLite.
type JobStore struct {
	db *sql.DB
}

const jobColumns = `id, owner_id, state, attempts, input_image, input_mime, input_filename,
  image_url, image_public_id, region, result_json, failure_reason,
  submitted_at, started_at, finished_at, next_run_at, updated_at`

func (s *JobStore) Create(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	nextRun := job.NextRunAt
	if nextRun.IsZero() {
		nextRun = job.SubmittedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO detection_jobs (id, owner_id, state, attempts, input_image, input_mime, input_filename,
           region, submitted_at, next_run_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.OwnerID,
		string(job.State),
		job.Attempts,
		job.Input.Image,
		job.Input.MimeType,
		job.Input.Filename,
		job.Region,
		job.SubmittedAt.UnixMilli(),
		nextRun.UnixMilli(),
		job.SubmittedAt.UnixMilli(),
	)
	return wrap("create job", err)
}

func (s *JobStore) Claim(ctx context.Context, now time.Time) (*domain.Job, error) {
	ms := now.UnixMilli()
	row := s.db.QueryRowContext(ctx,
		`UPDATE detection_jobs
         SET state = 'active', attempts = attempts + 1, started_at = ?, updated_at = ?
         WHERE id = (
           SELECT id FROM detection_jobs
           WHERE state = 'waiting' AND next_run_at <= ?
           ORDER BY next_run_at ASC, submitted_at ASC
           LIMIT 1
         ) AND state = 'waiting'
         RETURNING `+jobColumns,
		ms, ms, ms,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNoJobAvailable
		}
		return nil, wrap("claim job", err)
	}
	return job, nil
}

func (s *JobStore) Transition(ctx context.Context, jobID string, t domain.Transition) error {
	if !domain.CanTransition(t.From, t.To) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.From, t.To)
	}
	var result sql.NullString
	if t.Result != nil {
		raw, err := json.Marshal(t.Result)
		if err != nil {
			return fmt.Errorf("encode job result: %w", err)
		}
		result = sql.NullString{String: string(raw), Valid: true}
	}
	var runAt sql.NullInt64
	if !t.RunAt.IsZero() {
		runAt = sql.NullInt64{Int64: t.RunAt.UnixMilli(), Valid: true}
	}
	at := t.At.UnixMilli()
	to := string(t.To)
	terminal := t.To.Terminal()

	res, err := s.db.ExecContext(ctx,
		`UPDATE detection_jobs
         SET state = ?,
             result_json = COALESCE(?, result_json),
             failure_reason = CASE WHEN ? = '' THEN failure_reason ELSE ? END,
             next_run_at = COALESCE(?, next_run_at),
             started_at = CASE WHEN ? = 'active' THEN ? ELSE started_at END,
             finished_at = CASE WHEN ? THEN ? ELSE finished_at END,
             input_image = CASE WHEN ? THEN NULL ELSE input_image END,
             updated_at = ?
         WHERE id = ? AND state = ?`,
		to,
		result,
		t.Reason, t.Reason,
		runAt,
		to, at,
		terminal, at,
		terminal,
		at,
		jobID, string(t.From),
	)
	if err != nil {
		return wrap("transition job", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("transition job", err)
	}
	if n == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

func (s *JobStore) SaveImageRef(ctx context.Context, jobID string, ref domain.ImageRef) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE detection_jobs SET image_url = ?, image_public_id = ?, updated_at = ? WHERE id = ?`,
		ref.URL, ref.PublicID, time.Now().UnixMilli(), jobID,
	)
	return wrap("save job image", err)
}

func (s *JobStore) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM detection_jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, wrap("get job", err)
	}
	return job, nil
}

func (s *JobStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM detection_jobs WHERE owner_id = ? ORDER BY submitted_at DESC LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, wrap("list jobs", err)
	}
	jobs, err := collect(rows)
	for i := range jobs {
		jobs[i].Input.Image = nil
	}
	return jobs, err
}

func (s *JobStore) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM detection_jobs
         WHERE state = 'active' AND started_at < ?
         ORDER BY started_at ASC LIMIT 100`,
		cutoff.UnixMilli(),
	)
	if err != nil {
		return nil, wrap("list stale jobs", err)
	}
	return collect(rows)
}

func (s *JobStore) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM detection_jobs WHERE state IN ('completed', 'failed') AND finished_at < ?`,
		cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, wrap("purge jobs", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func collect(rows *sql.Rows) ([]domain.Job, error) {
	defer rows.Close()
	var out []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, wrap("scan job", err)
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job                      domain.Job
		state                    string
		result                   sql.NullString
		submitted, next, updated int64
		started, finished        sql.NullInt64
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
		&result,
		&job.FailureReason,
		&submitted,
		&started,
		&finished,
		&next,
		&updated,
	); err != nil {
		return nil, err
	}
	job.State = domain.JobState(state)
	job.SubmittedAt = time.UnixMilli(submitted).UTC()
	job.NextRunAt = time.UnixMilli(next).UTC()
	job.UpdatedAt = time.UnixMilli(updated).UTC()
	job.StartedAt = millisPtr(started)
	job.FinishedAt = millisPtr(finished)
	if result.Valid && result.String != "" {
		var r domain.JobResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
		job.Result = &r
	}
	return &job, nil
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

// wrap marks busy/locked database errors as transient.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || isBusy(err) {
		return domain.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ domain.JobRepository = (*JobStore)(nil)
