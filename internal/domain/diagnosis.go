package domain

import "time"

// ImageRef is a stable public reference to an uploaded image.
type ImageRef struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId,omitempty"`
}

// Diagnosis is the persisted outcome of a completed detection job. It is
// written once and never updated; a repeat detection creates a new one.
type Diagnosis struct {
	ID           string
	CropRecordID string
	OwnerID      string
	Prediction   NormalizedPrediction
	DiseaseInfo  DiseaseInfo
	Image        ImageRef
	CreatedAt    time.Time
}
