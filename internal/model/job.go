package model

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobArchived JobStatus = "archived"
	JobFailed   JobStatus = "failed"
)

// Job is a queued request to ingest a URL.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	URL          string     `json:"url"`
	Status       JobStatus  `json:"status"`
	ArticleID    int64      `json:"article_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	EnqueuedAt   time.Time  `json:"enqueued_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// NewJob returns a pending job for url.
func NewJob(url string) Job {
	return Job{
		ID:         uuid.New(),
		URL:        url,
		Status:     JobPending,
		EnqueuedAt: time.Now().UTC(),
	}
}
