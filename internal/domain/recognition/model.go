// Package recognition tracks per-document recognition jobs and drives the
// external recognition worker.
package recognition

import (
	"time"

	"github.com/google/uuid"

	"github.com/cna/cna/internal/domain/record"
)

// Status is the lifecycle state of one recognition job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Document is one uploaded document pending recognition.
type Document struct {
	Name    string
	Content []byte
}

// Job tracks the recognition of a single document. The document bytes are
// retained so a failed job can be re-staged and retried.
type Job struct {
	ID       uuid.UUID                 `json:"id"`
	FileName string                    `json:"file_name"`
	Status   Status                    `json:"status"`
	Result   *record.RecognitionResult `json:"result,omitempty"`
	Error    string                    `json:"error,omitempty"`

	Content []byte `json:"-"`
}

// Session groups the jobs of one batch submission. Jobs keep submission
// order.
type Session struct {
	ID        uuid.UUID `json:"id"`
	Jobs      []*Job    `json:"jobs"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a progress summary over a session's jobs.
type Snapshot struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}
