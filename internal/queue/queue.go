// Package queue accepts detection submissions and answers status queries over
// the durable job store.
package queue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"agrinix/internal/domain"
	"agrinix/internal/infra"
)

// DefaultMaxImageBytes is the submission ceiling when none is configured.
const DefaultMaxImageBytes = 5 << 20

// OwnerLookup reports whether an owner exists in the Record Store.
type OwnerLookup interface {
	FindOwner(ctx context.Context, ownerID string) (bool, error)
}

// SubmitRequest is one image submitted for detection.
type SubmitRequest struct {
	OwnerID  string
	Image    []byte
	MimeType string
	Filename string
	Region   string
}

// Options configures a Queue.
type Options struct {
	Jobs          domain.JobRepository
	Owners        OwnerLookup
	MaxImageBytes int
	Now           func() time.Time
	NewID         func() string
	Logger        *infra.Logger
}

// Queue validates submissions and persists them as waiting jobs.
type Queue struct {
	jobs     domain.JobRepository
	owners   OwnerLookup
	maxBytes int
	now      func() time.Time
	newID    func() string
	logger   *infra.Logger
}

func New(opts Options) (*Queue, error) {
	if opts.Jobs == nil {
		return nil, errors.New("queue: job repository is required")
	}
	if opts.Owners == nil {
		return nil, errors.New("queue: owner lookup is required")
	}
	maxBytes := opts.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	return &Queue{
		jobs:     opts.Jobs,
		owners:   opts.Owners,
		maxBytes: maxBytes,
		now:      now,
		newID:    newID,
		logger:   infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// Submit validates req and enqueues a waiting job, returning its id. Invalid
// input is reported as a *domain.ValidationError and nothing is enqueued.
func (q *Queue) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return "", &domain.ValidationError{Field: "ownerId", Message: "owner is required"}
	}
	mimeType, err := q.validateImage(req.Image, req.MimeType)
	if err != nil {
		return "", err
	}
	exists, err := q.owners.FindOwner(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("find owner: %w", err)
	}
	if !exists {
		return "", fmt.Errorf("owner %s: %w", ownerID, domain.ErrNotFound)
	}

	now := q.now().UTC()
	job := &domain.Job{
		ID:      q.newID(),
		OwnerID: ownerID,
		State:   domain.JobStateWaiting,
		Input: domain.JobInput{
			Image:    req.Image,
			MimeType: mimeType,
			Filename: strings.TrimSpace(req.Filename),
		},
		Region:      strings.ToUpper(strings.TrimSpace(req.Region)),
		SubmittedAt: now,
		NextRunAt:   now,
		UpdatedAt:   now,
	}
	if err := q.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	q.logger.Info().
		Str("job_id", job.ID).
		Str("owner_id", ownerID).
		Str("state", string(job.State)).
		Int("bytes", len(req.Image)).
		Msg("queue: job submitted")
	return job.ID, nil
}

// validateImage checks size and type, returning the effective mime type. The
// declared type must agree with the sniffed content.
func (q *Queue) validateImage(data []byte, declared string) (string, error) {
	if len(data) == 0 {
		return "", &domain.ValidationError{Field: "crop-image", Message: "image is required"}
	}
	if len(data) > q.maxBytes {
		return "", &domain.ValidationError{
			Field:   "crop-image",
			Message: fmt.Sprintf("image exceeds %d bytes", q.maxBytes),
		}
	}
	sniffed := http.DetectContentType(data)
	declared = strings.ToLower(strings.TrimSpace(declared))
	if idx := strings.IndexByte(declared, ';'); idx >= 0 {
		declared = strings.TrimSpace(declared[:idx])
	}
	if declared != "" && !strings.HasPrefix(declared, "image/") {
		return "", &domain.ValidationError{Field: "crop-image", Message: "only image files are allowed"}
	}
	if !strings.HasPrefix(sniffed, "image/") {
		return "", &domain.ValidationError{Field: "crop-image", Message: "file content is not an image"}
	}
	if declared == "" {
		return sniffed, nil
	}
	return declared, nil
}
