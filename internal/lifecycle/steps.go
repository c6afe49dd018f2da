package lifecycle

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/dbmanager/internal/journal"
	"github.com/edvin/dbmanager/internal/model"
	"github.com/edvin/dbmanager/internal/postgres"
)

// Target selects the database a step's connection must point at.
type Target int

const (
	// TargetAny keeps whatever connection is open.
	TargetAny Target = iota
	// TargetAdmin is the administrative database.
	TargetAdmin
	// TargetTenant is the tenant database named in the request.
	TargetTenant
)

// Step is one unit of a create or drop sequence.
type Step struct {
	Name   string
	Target Target
	// BestEffort steps log their failure and let the sequence continue.
	BestEffort bool
	// AbortOn marks failures that abort the sequence even for a best-effort step.
	AbortOn func(error) bool
	// Needs names earlier steps whose in-memory output Run uses. A resumed
	// run restarts from the earliest needed step that would be skipped.
	Needs []string
	Run   func(ctx context.Context, r *run) error
}

// StepError reports the step that aborted a sequence.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StepFailure is a best-effort step that failed.
type StepFailure struct {
	Step string
	Err  error
}

// run carries the state of one invocation through its steps.
type run struct {
	o         *Orchestrator
	operation model.Operation
	name      string
	runID     string
	admin     *model.SecretRecord
	tls       *tls.Config
	logger    zerolog.Logger

	client *postgres.AdminClient

	// Outputs shared between steps.
	password string
	secretID string
	now      time.Time

	failures []StepFailure
}

func (r *run) connConfig(database string) postgres.ConnConfig {
	return postgres.ConnConfig{
		Host:           r.admin.Host,
		Port:           r.admin.Port,
		User:           r.admin.Username,
		Password:       r.admin.Password,
		Database:       database,
		TLS:            r.tls,
		ConnectTimeout: r.o.opts.ConnectTimeout,
	}
}

// use makes sure the open connection points at the database of target,
// closing the current one first when it points elsewhere.
func (r *run) use(ctx context.Context, target Target) error {
	var database string
	switch target {
	case TargetAny:
		if r.client != nil {
			return nil
		}
		database = r.o.opts.AdminDatabase
	case TargetAdmin:
		database = r.o.opts.AdminDatabase
	case TargetTenant:
		database = r.name
	}
	if r.client != nil && r.client.Database() == database {
		return nil
	}
	r.close(ctx)

	client := postgres.NewAdminClient(r.connConfig(database), r.o.dial, r.logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	r.client = client
	return nil
}

// close ends the open connection, if any. It runs even when ctx is done.
func (r *run) close(ctx context.Context) {
	if r.client == nil {
		return
	}
	client := r.client
	r.client = nil
	if err := client.End(context.WithoutCancel(ctx)); err != nil {
		r.logger.Warn().Err(err).Str("target_database", client.Database()).Msg("failed to close connection")
	}
}

// runSteps executes steps[start:] in order and closes the connection on
// every exit path. A failure that aborts is returned as a *StepError.
func (r *run) runSteps(ctx context.Context, steps []Step, start int, record bool) error {
	defer r.close(ctx)

	for i := start; i < len(steps); i++ {
		step := steps[i]
		logger := r.logger.With().Str("step", step.Name).Int("step_index", i).Logger()

		began := time.Now()
		abort, err := r.runStep(ctx, step)
		r.o.metrics.ObserveStep(string(r.operation), step.Name, time.Since(began))

		if err != nil {
			if abort {
				logger.Error().Err(err).Msg("step failed")
				if record {
					r.checkpoint(ctx, i-1, stepName(steps, i-1), journal.StatusFailed)
				}
				return &StepError{Step: step.Name, Err: err}
			}
			r.bestEffortFailed(logger, step.Name, err)
		} else {
			logger.Debug().Msg("step completed")
		}

		if record {
			r.checkpoint(ctx, i, step.Name, journal.StatusInProgress)
		}
	}
	return nil
}

// runStep connects to the step's target and runs it. abort reports whether a
// failure must stop the sequence. Failing to connect always aborts, except
// for a best-effort step whose tenant database does not exist.
func (r *run) runStep(ctx context.Context, step Step) (abort bool, err error) {
	if err := r.use(ctx, step.Target); err != nil {
		missingTenant := step.Target == TargetTenant && postgres.IsNotExist(err)
		return !(step.BestEffort && missingTenant), err
	}
	if err := step.Run(ctx, r); err != nil {
		return !step.BestEffort || (step.AbortOn != nil && step.AbortOn(err)), err
	}
	return false, nil
}

func (r *run) bestEffortFailed(logger zerolog.Logger, step string, err error) {
	if postgres.IsNotExist(err) {
		logger.Info().Bool("benign", true).Err(err).Msg("step skipped")
		return
	}
	logger.Warn().Err(err).Msg("best-effort step failed")
	r.o.metrics.BestEffortFailure(step)
	r.failures = append(r.failures, StepFailure{Step: step, Err: err})
}

// checkpoint records the cursor. Journal failures are logged, never returned.
func (r *run) checkpoint(ctx context.Context, index int, step, status string) {
	err := r.o.journal.Record(ctx, journal.Entry{
		Database:  r.name,
		Operation: string(r.operation),
		RunID:     r.runID,
		StepIndex: index,
		Step:      step,
		Status:    status,
	})
	if err != nil {
		r.logger.Warn().Err(err).Int("step_index", index).Msg("failed to record journal entry")
	}
}

func (r *run) clearJournal(ctx context.Context, op model.Operation) {
	if err := r.o.journal.Clear(ctx, r.name, string(op)); err != nil {
		r.logger.Warn().Err(err).Str("journal_operation", string(op)).Msg("failed to clear journal entry")
	}
}

// resumeIndex returns the step to start from given the journal cursor. The
// start moves back to any completed step whose output a later step needs.
func (r *run) resumeIndex(ctx context.Context, steps []Step) int {
	entry, err := r.o.journal.Last(ctx, r.name, string(r.operation))
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to read journal, starting from the first step")
		return 0
	}
	if entry == nil || entry.StepIndex < 0 {
		return 0
	}
	if entry.StepIndex >= len(steps) || steps[entry.StepIndex].Name != entry.Step {
		r.logger.Warn().Int("step_index", entry.StepIndex).Str("step", entry.Step).Msg("journal cursor does not match steps, starting from the first step")
		return 0
	}

	start := entry.StepIndex + 1
	if start >= len(steps) {
		// A finished run whose cursor was never cleared.
		return 0
	}
	for changed := true; changed; {
		changed = false
		for _, step := range steps[start:] {
			for _, need := range step.Needs {
				if i := stepIndex(steps, need); i >= 0 && i < start {
					start = i
					changed = true
				}
			}
		}
	}

	r.logger.Info().
		Str("previous_run_id", entry.RunID).
		Str("previous_status", entry.Status).
		Str("resume_step", stepName(steps, start)).
		Int("resume_index", start).
		Msg("resuming from journal")
	return start
}

func stepIndex(steps []Step, name string) int {
	for i, s := range steps {
		if s.Name == name {
			return i
		}
	}
	return -1
}

func stepName(steps []Step, i int) string {
	if i < 0 || i >= len(steps) {
		return ""
	}
	return steps[i].Name
}
