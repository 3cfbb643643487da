// Package worker runs detection jobs claimed from the durable queue through
// the image store, inference, normalization, enrichment and persistence steps.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"agrinix/internal/domain"
	"agrinix/internal/infra"
)

// Classifier calls the external inference model.
type Classifier interface {
	Classify(ctx context.Context, imageURL string) (json.RawMessage, error)
}

// Enricher turns a class label into disease information. It must not fail.
type Enricher interface {
	Enrich(ctx context.Context, class string) domain.DiseaseInfo
}

// Event is reported for every persisted job transition, claims included.
type Event struct {
	JobID   string
	OwnerID string
	From    domain.JobState
	To      domain.JobState
	Attempt int
	Reason  string
	At      time.Time
}

// Options configures a Pool. Zero durations and counts take defaults.
type Options struct {
	Jobs       domain.JobRepository
	Records    domain.RecordStore
	Images     domain.ImageStore
	Inference  Classifier
	Enrichment Enricher

	Concurrency     int
	PollInterval    time.Duration
	StepTimeout     time.Duration
	Lease           time.Duration
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	PersistAttempts int
	PersistBackoff  time.Duration
	Retention       time.Duration

	Now          func() time.Time
	OnTransition func(Event)
	Logger       *infra.Logger
}

// Pool is a bounded set of workers sharing one job store.
type Pool struct {
	jobs       domain.JobRepository
	records    domain.RecordStore
	images     domain.ImageStore
	inference  Classifier
	enrichment Enricher

	concurrency     int
	pollInterval    time.Duration
	stepTimeout     time.Duration
	lease           time.Duration
	maxAttempts     int
	backoffBase     time.Duration
	backoffMax      time.Duration
	persistAttempts int
	persistBackoff  time.Duration
	retention       time.Duration

	now          func() time.Time
	onTransition func(Event)
	logger       *infra.Logger
}

func New(opts Options) (*Pool, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("worker: job repository is required")
	case opts.Records == nil:
		return nil, errors.New("worker: record store is required")
	case opts.Images == nil:
		return nil, errors.New("worker: image store is required")
	case opts.Inference == nil:
		return nil, errors.New("worker: inference client is required")
	case opts.Enrichment == nil:
		return nil, errors.New("worker: enrichment chain is required")
	}
	p := &Pool{
		jobs:            opts.Jobs,
		records:         opts.Records,
		images:          opts.Images,
		inference:       opts.Inference,
		enrichment:      opts.Enrichment,
		concurrency:     orInt(opts.Concurrency, 4),
		pollInterval:    orDuration(opts.PollInterval, 2*time.Second),
		stepTimeout:     orDuration(opts.StepTimeout, time.Minute),
		lease:           orDuration(opts.Lease, 5*time.Minute),
		maxAttempts:     orInt(opts.MaxAttempts, domain.MaxJobAttempts),
		backoffBase:     orDuration(opts.BackoffBase, 2*time.Second),
		backoffMax:      orDuration(opts.BackoffMax, time.Minute),
		persistAttempts: orInt(opts.PersistAttempts, 3),
		persistBackoff:  orDuration(opts.PersistBackoff, 200*time.Millisecond),
		retention:       orDuration(opts.Retention, 7*24*time.Hour),
		now:             opts.Now,
		onTransition:    opts.OnTransition,
		logger:          infra.LoggerOrDiscard(opts.Logger),
	}
	if p.maxAttempts > domain.MaxJobAttempts {
		p.maxAttempts = domain.MaxJobAttempts
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Run starts the workers, the reaper and the janitor and blocks until ctx is
// cancelled. In-flight jobs finish their current step before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info().Int("concurrency", p.concurrency).Msg("worker: started")
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			p.loop(ctx, slot)
		}(i)
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.every(ctx, p.lease/2, p.Reap)
	}()
	go func() {
		defer wg.Done()
		p.every(ctx, time.Hour, p.Purge)
	}()
	wg.Wait()
	p.logger.Info().Msg("worker: stopped")
	return nil
}

func (p *Pool) loop(ctx context.Context, slot int) {
	for {
		if ctx.Err() != nil {
			return
		}
		worked, err := p.RunOnce(ctx)
		if err != nil {
			p.logger.Error().Err(err).Int("slot", slot).Msg("worker: failed to claim job")
		}
		if worked {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.pollInterval):
		}
	}
}

func (p *Pool) every(ctx context.Context, interval time.Duration, task func(context.Context) error) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := task(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error().Err(err).Msg("worker: maintenance task failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims at most one runnable job and processes it to its next
// persisted state. It reports false when the queue had nothing to run.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.jobs.Claim(ctx, p.now())
	if err != nil {
		if errors.Is(err, domain.ErrNoJobAvailable) {
			return false, nil
		}
		return false, err
	}
	claimedAt := p.now()
	if job.StartedAt != nil {
		claimedAt = *job.StartedAt
	}
	p.emit(job, domain.JobStateWaiting, domain.JobStateActive, "", claimedAt)
	p.handle(ctx, job)
	return true, nil
}

func (p *Pool) handle(ctx context.Context, job *domain.Job) {
	log := p.logger.With().Str("job_id", job.ID).Str("owner_id", job.OwnerID).Int("attempt", job.Attempts).Logger()
	log.Info().Msg("worker: picked job")

	// The job must still be settled after shutdown cancels ctx.
	settle := context.WithoutCancel(ctx)

	result, err := p.process(ctx, job)
	if err == nil {
		p.complete(settle, job, result)
		return
	}

	reason := err.Error()
	switch {
	case ctx.Err() != nil && job.Attempts < p.maxAttempts:
		log.Warn().Err(err).Msg("worker: interrupted, re-enqueueing")
		p.finish(settle, job, domain.Transition{
			From:   domain.JobStateActive,
			To:     domain.JobStateWaiting,
			Reason: "interrupted: " + reason,
			RunAt:  p.now(),
		})
	case domain.IsRetryable(err) && job.Attempts < p.maxAttempts:
		delay := Backoff(job.Attempts, p.backoffBase, p.backoffMax)
		log.Warn().Err(err).Dur("backoff", delay).Msg("worker: transient failure, retrying")
		p.finish(settle, job, domain.Transition{
			From:   domain.JobStateActive,
			To:     domain.JobStateWaiting,
			Reason: reason,
			RunAt:  p.now().Add(delay),
		})
	default:
		if isConfiguration(err) {
			log.Error().Err(err).Msg("worker: configuration error, operator action required")
		} else {
			log.Error().Err(err).Msg("worker: job failed")
		}
		p.finish(settle, job, domain.Transition{
			From:   domain.JobStateActive,
			To:     domain.JobStateFailed,
			Reason: reason,
		})
	}
}

// complete records the result with the persist retry budget. If every try
// fails the job stays active and the reaper re-runs it; the diagnosis write
// is keyed by job so the re-run reuses it.
func (p *Pool) complete(ctx context.Context, job *domain.Job, result *domain.JobResult) {
	t := domain.Transition{
		From:   domain.JobStateActive,
		To:     domain.JobStateCompleted,
		Result: result,
	}
	for attempt := 1; ; attempt++ {
		err := p.finish(ctx, job, t)
		if err == nil || !domain.IsRetryable(err) || attempt >= p.persistAttempts {
			return
		}
		time.Sleep(Backoff(attempt, p.persistBackoff, p.persistBackoff*8))
	}
}

// finish persists t and reports it. A stale transition means the reaper
// already reclaimed the job.
func (p *Pool) finish(ctx context.Context, job *domain.Job, t domain.Transition) error {
	t.At = p.now()
	if err := p.jobs.Transition(ctx, job.ID, t); err != nil {
		ev := p.logger.Error()
		if errors.Is(err, domain.ErrStaleTransition) {
			ev = p.logger.Warn()
		}
		ev.Err(err).Str("job_id", job.ID).Str("state", string(t.To)).Msg("worker: transition not applied")
		return err
	}
	p.emit(job, t.From, t.To, t.Reason, t.At)
	return nil
}

func (p *Pool) emit(job *domain.Job, from, to domain.JobState, reason string, at time.Time) {
	p.logger.Info().
		Str("job_id", job.ID).
		Str("from", string(from)).
		Str("state", string(to)).
		Int("attempt", job.Attempts).
		Msg("worker: job transition")
	if p.onTransition != nil {
		p.onTransition(Event{
			JobID:   job.ID,
			OwnerID: job.OwnerID,
			From:    from,
			To:      to,
			Attempt: job.Attempts,
			Reason:  reason,
			At:      at,
		})
	}
}

// Backoff returns base * 2^(attempt-1), capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d >= max/2 {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func stepError(step string, err error) error {
	return fmt.Errorf("%s: %w", step, err)
}
