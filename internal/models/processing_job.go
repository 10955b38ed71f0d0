package models

import "time"

type ProcessingJob struct {
	ID        string       `json:"id"`
	Source    string       `json:"source"`
	Outputs   []OutputSpec `json:"outputs"`
	Status    string       `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	Error     string       `json:"error,omitempty"`
}

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)
