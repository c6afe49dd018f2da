// Package journal persists the progress cursor of lifecycle runs so an
// interrupted run can resume where it stopped.
package journal

import (
	"context"
	"time"
)

// Entry statuses.
const (
	StatusInProgress = "in-progress"
	StatusFailed     = "failed"
)

// Entry is the cursor of one run: the last step that completed.
type Entry struct {
	Database  string    `json:"database"`
	Operation string    `json:"operation"`
	RunID     string    `json:"run_id"`
	StepIndex int       `json:"step_index"`
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Journal stores at most one Entry per database and operation.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	// Last returns nil when no entry exists.
	Last(ctx context.Context, database, operation string) (*Entry, error)
	Clear(ctx context.Context, database, operation string) error
}

type key struct {
	database  string
	operation string
}
