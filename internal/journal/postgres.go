package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by Postgres.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores entries in the lifecycle_journal table.
type Postgres struct {
	db DB
}

// NewPostgres creates a journal over the given pool.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	_, err := p.db.Exec(ctx, `INSERT INTO lifecycle_journal
		(database_name, operation, run_id, step_index, step, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (database_name, operation) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			step_index = EXCLUDED.step_index,
			step = EXCLUDED.step,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		e.Database, e.Operation, e.RunID, e.StepIndex, e.Step, e.Status, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("record journal entry: %w", err)
	}
	return nil
}

func (p *Postgres) Last(ctx context.Context, database, operation string) (*Entry, error) {
	e := Entry{Database: database, Operation: operation}
	err := p.db.QueryRow(ctx, `SELECT run_id, step_index, step, status, updated_at
		FROM lifecycle_journal WHERE database_name = $1 AND operation = $2`,
		database, operation,
	).Scan(&e.RunID, &e.StepIndex, &e.Step, &e.Status, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get journal entry: %w", err)
	}
	return &e, nil
}

func (p *Postgres) Clear(ctx context.Context, database, operation string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM lifecycle_journal WHERE database_name = $1 AND operation = $2`,
		database, operation)
	if err != nil {
		return fmt.Errorf("clear journal entry: %w", err)
	}
	return nil
}
