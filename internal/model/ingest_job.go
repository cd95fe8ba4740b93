package model

import "time"

// IngestJob is the queued request to index one document.
type IngestJob struct {
	JobID       string    `json:"job_id"`
	OwnerEmail  string    `json:"owner_email"`
	OwnerName   string    `json:"owner_name"`
	ChatbotName string    `json:"chatbot_name"`
	Strategy    string    `json:"strategy"`
	Content     string    `json:"content"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

type IngestStatus string

const (
	IngestQueued  IngestStatus = "queued"
	IngestRunning IngestStatus = "running"
	IngestDone    IngestStatus = "done"
	IngestFailed  IngestStatus = "failed"
)

// IngestProgress is the observable state of an ingestion job.
type IngestProgress struct {
	JobID     string       `json:"job_id"`
	ShareID   string       `json:"share_id"`
	Status    IngestStatus `json:"status"`
	Done      int          `json:"done"`
	Total     int          `json:"total"`
	Committed int          `json:"committed"`
	Error     string       `json:"error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (p IngestProgress) Finished() bool {
	return p.Status == IngestDone || p.Status == IngestFailed
}
