package worker

import (
	"context"
	"fmt"

	"agrinix/internal/domain"
)

// Reap re-enqueues active jobs whose lease expired, typically because the
// worker holding them died. Jobs with no attempts left fail instead.
func (p *Pool) Reap(ctx context.Context) error {
	now := p.now()
	stale, err := p.jobs.ListStale(ctx, now.Add(-p.lease))
	if err != nil {
		return fmt.Errorf("list stale jobs: %w", err)
	}
	for i := range stale {
		job := &stale[i]
		t := domain.Transition{
			From:   domain.JobStateActive,
			To:     domain.JobStateWaiting,
			Reason: "lease expired",
			RunAt:  now,
		}
		if job.Attempts >= p.maxAttempts {
			t.To = domain.JobStateFailed
			t.Reason = fmt.Sprintf("lease expired after %d attempts", job.Attempts)
		}
		p.logger.Warn().Str("job_id", job.ID).Int("attempt", job.Attempts).Str("state", string(t.To)).Msg("worker: reaping stale job")
		p.finish(ctx, job, t)
	}
	return nil
}

// Purge deletes terminal jobs older than the retention window.
func (p *Pool) Purge(ctx context.Context) error {
	n, err := p.jobs.PurgeFinished(ctx, p.now().Add(-p.retention))
	if err != nil {
		return fmt.Errorf("purge jobs: %w", err)
	}
	if n > 0 {
		p.logger.Info().Int64("purged", n).Msg("worker: purged finished jobs")
	}
	return nil
}
