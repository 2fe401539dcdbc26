package domain

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Job is a queued outbound webhook delivery.
type Job struct {
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	Payload   json.RawMessage `json:"payload"`
	Status    JobStatus       `json:"status"`
	Attempts  int             `json:"attempts"`
	NextRunAt time.Time       `json:"next_run_at"`
	CreatedAt time.Time       `json:"created_at"`

	// Key and Version locate the stored record for version-checked updates.
	Key     string `json:"-"`
	Version int64  `json:"-"`
}
