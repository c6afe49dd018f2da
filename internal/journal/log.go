package journal

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Log keeps entries in process memory and writes every change to the log.
// Entries survive only as long as the process, which for a warm function
// instance covers retries of the same run.
type Log struct {
	mu      sync.Mutex
	entries map[key]Entry
	logger  zerolog.Logger
}

// NewLog creates an in-process journal.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{
		entries: make(map[key]Entry),
		logger:  logger.With().Str("component", "journal").Logger(),
	}
}

func (l *Log) Record(_ context.Context, e Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	l.mu.Lock()
	l.entries[key{e.Database, e.Operation}] = e
	l.mu.Unlock()

	l.logger.Info().
		Str("database", e.Database).
		Str("operation", e.Operation).
		Str("run_id", e.RunID).
		Int("step_index", e.StepIndex).
		Str("step", e.Step).
		Str("status", e.Status).
		Msg("journal cursor")
	return nil
}

func (l *Log) Last(_ context.Context, database, operation string) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key{database, operation}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (l *Log) Clear(_ context.Context, database, operation string) error {
	l.mu.Lock()
	delete(l.entries, key{database, operation})
	l.mu.Unlock()
	return nil
}
