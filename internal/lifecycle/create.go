package lifecycle

import (
	"context"
	"net/http"

	"github.com/edvin/dbmanager/internal/model"
	"github.com/edvin/dbmanager/internal/platform"
	"github.com/edvin/dbmanager/internal/postgres"
)

// Create step names, in order.
const (
	StepCreateDatabase          = "create-database"
	StepCreateRole              = "create-role"
	StepSetPassword             = "set-password"
	StepGrantSystemPrivileges   = "grant-system-privileges"
	StepPersistSecret           = "persist-secret"
	StepGrantDatabasePrivileges = "grant-database-privileges"
)

// createSteps provisions the database and role, stores the role's
// credentials, then grants schema privileges from inside the new database.
// Every step converges when repeated.
var createSteps = []Step{
	{
		Name:   StepCreateDatabase,
		Target: TargetAdmin,
		Run: func(ctx context.Context, r *run) error {
			return alreadyDone(r, StepCreateDatabase, r.client.CreateDatabase(ctx, r.name))
		},
	},
	{
		Name:   StepCreateRole,
		Target: TargetAdmin,
		Run: func(ctx context.Context, r *run) error {
			return alreadyDone(r, StepCreateRole, r.client.CreateUser(ctx, r.name))
		},
	},
	{
		Name:   StepSetPassword,
		Target: TargetAdmin,
		Run: func(ctx context.Context, r *run) error {
			password, err := platform.RandomString(platform.PasswordLength)
			if err != nil {
				return err
			}
			if err := r.client.ChangePassword(ctx, r.name, password); err != nil {
				return err
			}
			r.password = password
			return nil
		},
	},
	{
		Name:   StepGrantSystemPrivileges,
		Target: TargetAdmin,
		Run: func(ctx context.Context, r *run) error {
			return r.client.GrantAdminPrivilegesSystemContext(ctx, r.name)
		},
	},
	{
		Name:   StepPersistSecret,
		Target: TargetAny,
		Needs:  []string{StepSetPassword},
		Run:    persistSecret,
	},
	{
		Name:   StepGrantDatabasePrivileges,
		Target: TargetTenant,
		Run: func(ctx context.Context, r *run) error {
			return r.client.GrantAdminPrivilegesDatabaseContext(ctx, r.name)
		},
	},
}

// alreadyDone treats an "already exists" failure as a completed step.
func alreadyDone(r *run, step string, err error) error {
	if postgres.IsAlreadyExists(err) {
		r.logger.Info().Str("step", step).Msg("already exists, step treated as done")
		return nil
	}
	return err
}

// persistSecret stores the tenant credentials. A secret left by an earlier
// run is rotated to the new password instead of creating a duplicate.
func persistSecret(ctx context.Context, r *run) error {
	existing, err := r.o.secrets.FindSecretsByTag(ctx, model.TenantTagKey, r.name)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		if len(existing) > 1 {
			r.logger.Warn().Strs("secret_ids", existing).Msg("multiple tenant secrets found, rotating the first")
		}
		r.secretID = existing[0]
		return r.o.secrets.RotateSecret(ctx, r.secretID, model.SecretRecord{
			Username: r.name,
			Password: r.password,
			Host:     r.admin.Host,
			Port:     r.admin.Port,
			Engine:   model.EnginePostgres,
		})
	}

	id, err := r.o.secrets.CreateSecret(ctx, r.name, r.name, r.admin.Host, r.admin.Port, r.password)
	if err != nil {
		return err
	}
	r.secretID = id
	return nil
}

func (o *Orchestrator) createDatabase(ctx context.Context, r *run) model.Response {
	start := r.resumeIndex(ctx, createSteps)
	err := r.runSteps(ctx, createSteps, start, true)
	if err != nil && start > 0 && postgres.IsNotExist(err) {
		// Objects an earlier run created are gone; rerun every step.
		r.logger.Warn().Err(err).Int("resume_index", start).Msg("resumed create found missing objects, restarting from the first step")
		err = r.runSteps(ctx, createSteps, 0, true)
	}
	if err != nil {
		return internalError("Error creating database", err)
	}
	r.clearJournal(ctx, model.OperationCreateDatabase)
	r.logger.Info().Str("secret_id", r.secretID).Msg("tenant database created")
	return model.NewResponse(http.StatusOK, "Database created successfully")
}
