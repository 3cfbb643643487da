package domain

import "time"

// Owner is the farmer account that submits detections and owns crop records.
type Owner struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}
