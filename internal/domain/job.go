package domain

import "time"

// MaxJobAttempts bounds how many times a detection job may be claimed.
const MaxJobAttempts = 5

// JobState enumerates detection job lifecycle states.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Terminal reports whether no further transitions can happen from s.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// CanTransition enforces the job state machine edges. active -> waiting is
// only legal as a retry re-enqueue.
func CanTransition(from, to JobState) bool {
	switch from {
	case JobStateWaiting:
		return to == JobStateActive
	case JobStateActive:
		return to == JobStateWaiting || to == JobStateCompleted || to == JobStateFailed
	default:
		return false
	}
}

// JobInput is the image payload captured at submission time.
type JobInput struct {
	Image    []byte
	MimeType string
	Filename string
}

// JobResult is the payload stored on a completed job.
type JobResult struct {
	Message     string                `json:"message"`
	DiagnosisID string                `json:"diagnosisId,omitempty"`
	Prediction  *NormalizedPrediction `json:"prediction,omitempty"`
	DiseaseInfo *DiseaseInfo          `json:"diseaseInfo,omitempty"`
	ImageURL    string                `json:"imageUrl,omitempty"`
}

// Job is one unit of asynchronous disease-detection work.
type Job struct {
	ID            string
	OwnerID       string
	State         JobState
	Attempts      int
	Input         JobInput
	Image         ImageRef
	Region        string
	Result        *JobResult
	FailureReason string
	SubmittedAt   time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	NextRunAt     time.Time
	UpdatedAt     time.Time
}

// Transition describes a guarded state change applied by a JobRepository.
// The change only lands when the stored state still equals From.
type Transition struct {
	From   JobState
	To     JobState
	At     time.Time
	Reason string
	Result *JobResult
	// RunAt schedules the next claim when To is waiting.
	RunAt time.Time
}
