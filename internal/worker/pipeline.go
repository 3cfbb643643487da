package worker

import (
	"context"
	"errors"
	"time"

	"agrinix/internal/domain"
	"agrinix/internal/prediction"
	"agrinix/internal/providers/imagestore"
	"agrinix/internal/providers/inference"
)

// MessageCompleted is the job message for a persisted diagnosis.
const MessageCompleted = "Disease detection completed"

var errMissingInput = errors.New("job has neither an uploaded image nor input bytes")

// process runs the pipeline for one claimed job. The Record Store write is the
// only side effect that commits the job; everything before it is safe to redo.
func (p *Pool) process(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	ref, err := p.ensureImage(ctx, job)
	if err != nil {
		return nil, stepError("image store", err)
	}

	inferCtx, cancel := context.WithTimeout(ctx, p.stepTimeout)
	raw, err := p.inference.Classify(inferCtx, ref.URL)
	cancel()
	if err != nil {
		return nil, stepError("inference", err)
	}

	res := prediction.Normalize(raw)
	if res.Kind != prediction.KindOK {
		p.logger.Info().
			Str("job_id", job.ID).
			Str("outcome", res.Kind.String()).
			Msg("worker: no prediction, completing with message")
		return &domain.JobResult{Message: res.Message, ImageURL: ref.URL}, nil
	}
	pred := *res.Prediction

	info := p.enrichment.Enrich(ctx, pred.DiseaseClassRaw)

	// Shutdown does not cut the diagnosis write short.
	diagnosisID, err := p.persist(context.WithoutCancel(ctx), job, pred, info, ref)
	if err != nil {
		return nil, stepError("record store", err)
	}
	return &domain.JobResult{
		Message:     MessageCompleted,
		DiagnosisID: diagnosisID,
		Prediction:  &pred,
		DiseaseInfo: &info,
		ImageURL:    ref.URL,
	}, nil
}

// ensureImage uploads the input once and records the reference on the job so
// retries reuse it.
func (p *Pool) ensureImage(ctx context.Context, job *domain.Job) (domain.ImageRef, error) {
	if job.Image.URL != "" {
		return job.Image, nil
	}
	if len(job.Input.Image) == 0 {
		return domain.ImageRef{}, errMissingInput
	}
	uploadCtx, cancel := context.WithTimeout(ctx, p.stepTimeout)
	defer cancel()
	ref, err := p.images.Upload(uploadCtx, job.Input.Image, job.Input.MimeType)
	if err != nil {
		return domain.ImageRef{}, err
	}
	if err := p.jobs.SaveImageRef(ctx, job.ID, ref); err != nil {
		return domain.ImageRef{}, err
	}
	job.Image = ref
	return ref, nil
}

// persist writes the diagnosis with its own bounded retry budget so a failed
// write does not redo inference and enrichment. The write is keyed by job id.
func (p *Pool) persist(ctx context.Context, job *domain.Job, pred domain.NormalizedPrediction, info domain.DiseaseInfo, ref domain.ImageRef) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= p.persistAttempts; attempt++ {
		id, err := p.records.CreateDiagnosis(ctx, job.ID, job.OwnerID, pred, info, ref)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !domain.IsRetryable(err) || attempt == p.persistAttempts {
			break
		}
		p.logger.Warn().Err(err).Str("job_id", job.ID).Int("persist_attempt", attempt).Msg("worker: diagnosis write failed, retrying")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(Backoff(attempt, p.persistBackoff, p.persistBackoff*8)):
		}
	}
	// Retrying the whole job would redo inference, so the write failure is final.
	return "", permanent{lastErr}
}

// permanent hides the retryable capability of a wrapped error.
type permanent struct{ err error }

func (e permanent) Error() string { return e.err.Error() }

func (e permanent) Unwrap() error { return e.err }

func (e permanent) Retryable() bool { return false }

func isConfiguration(err error) bool {
	var ierr *inference.Error
	if errors.As(err, &ierr) && ierr.Kind == inference.KindConfiguration {
		return true
	}
	return errors.Is(err, imagestore.ErrMissingCredentials)
}
