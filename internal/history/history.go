// Package history records one row per document per run.
package history

import (
	"context"
	"time"
)

// Status values stored for a document task.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Record describes the outcome of one document task.
type Record struct {
	RunID        string
	DocumentName string
	URL          string
	Strategy     string
	TextLength   int
	ChangeCount  int
	Status       string
	ErrorText    string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Recorder persists task records.
type Recorder interface {
	RecordRun(ctx context.Context, rec Record) error
}
