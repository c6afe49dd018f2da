package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/edvin/dbmanager/internal/config"
	"github.com/edvin/dbmanager/internal/model"
	"github.com/edvin/dbmanager/internal/postgres"
)

// Drop step names, in order.
const (
	StepInspectCatalog           = "inspect-catalog"
	StepRevokeSystemPrivileges   = "revoke-system-privileges"
	StepRevokeDatabasePrivileges = "revoke-database-privileges"
	StepDropDatabase             = "drop-database"
	StepDropRole                 = "drop-role"
)

// dropSteps are all best-effort so a partially created tenant can still be
// removed. Privileges inside the tenant database are revoked before it is
// dropped; the role goes last. An unreachable server or a database that is
// still in use aborts the drop before any secret is deleted.
var dropSteps = []Step{
	{
		Name:       StepInspectCatalog,
		Target:     TargetAdmin,
		BestEffort: true,
		Run: func(ctx context.Context, r *run) error {
			dbExists, err := r.client.DatabaseExists(ctx, r.name)
			if err != nil {
				return err
			}
			roleExists, err := r.client.RoleExists(ctx, r.name)
			if err != nil {
				return err
			}
			r.logger.Info().Bool("database_exists", dbExists).Bool("role_exists", roleExists).Msg("tenant objects before drop")
			return nil
		},
	},
	{
		Name:       StepRevokeSystemPrivileges,
		Target:     TargetAdmin,
		BestEffort: true,
		Run: func(ctx context.Context, r *run) error {
			return r.client.RevokeAdminPrivilegesSystemContext(ctx, r.name)
		},
	},
	{
		Name:       StepRevokeDatabasePrivileges,
		Target:     TargetTenant,
		BestEffort: true,
		Run: func(ctx context.Context, r *run) error {
			return r.client.RevokeAdminPrivilegesDatabaseContext(ctx, r.name)
		},
	},
	{
		Name:       StepDropDatabase,
		Target:     TargetAdmin,
		BestEffort: true,
		AbortOn:    postgres.IsInUse,
		Run: func(ctx context.Context, r *run) error {
			return r.client.DropDatabase(ctx, r.name)
		},
	},
	{
		Name:       StepDropRole,
		Target:     TargetAdmin,
		BestEffort: true,
		Run: func(ctx context.Context, r *run) error {
			return r.client.DropUser(ctx, r.name)
		},
	},
}

func (o *Orchestrator) dropDatabase(ctx context.Context, r *run) model.Response {
	if err := r.runSteps(ctx, dropSteps, 0, true); err != nil {
		if postgres.IsInUse(err) {
			return internalError(fmt.Sprintf("Error dropping database: %s is still in use by other sessions, retry the drop", r.name), err)
		}
		return internalError("Error dropping database", err)
	}
	r.clearJournal(ctx, model.OperationDropDatabase)
	r.clearJournal(ctx, model.OperationCreateDatabase)

	ids, err := o.secrets.FindSecretsByTag(ctx, model.TenantTagKey, r.name)
	if err != nil {
		return internalError("Error dropping database", fmt.Errorf("find tenant secrets: %w", err))
	}
	if len(ids) == 0 {
		return notFound("Error finding secret for " + r.name)
	}

	var failed []string
	if o.opts.DeletePolicy == config.DeletePolicyAllOrNothing {
		if err := o.deleteAllOrNothing(ctx, r, ids); err != nil {
			return internalError("Error dropping database", err)
		}
	} else {
		failed = o.deleteBestEffort(ctx, r, ids)
	}

	return model.NewResponse(http.StatusOK, dropMessage(r.name, ids, failed, r.failures))
}

// deleteBestEffort attempts every deletion and returns the ids that failed.
func (o *Orchestrator) deleteBestEffort(ctx context.Context, r *run, ids []string) []string {
	var (
		mu     sync.Mutex
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.DeleteConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := o.secrets.DeleteSecret(gctx, id); err != nil {
				r.logger.Warn().Err(err).Str("secret_id", id).Msg("failed to delete tenant secret")
				o.metrics.BestEffortFailure("delete-secret")
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
				return nil
			}
			r.logger.Info().Str("secret_id", id).Msg("tenant secret deleted")
			return nil
		})
	}
	_ = g.Wait()
	slices.Sort(failed)
	return failed
}

// deleteAllOrNothing deletes in order and stops at the first failure.
func (o *Orchestrator) deleteAllOrNothing(ctx context.Context, r *run, ids []string) error {
	for i, id := range ids {
		if err := o.secrets.DeleteSecret(ctx, id); err != nil {
			return fmt.Errorf("delete secret %s: %w (deleted: [%s], remaining: [%s])",
				id, err, strings.Join(ids[:i], ", "), strings.Join(ids[i:], ", "))
		}
		r.logger.Info().Str("secret_id", id).Msg("tenant secret deleted")
	}
	return nil
}

func dropMessage(name string, ids, failedSecrets []string, failures []StepFailure) string {
	stepFailed := map[string]bool{}
	for _, f := range failures {
		stepFailed[f.Step] = true
	}

	var b strings.Builder
	if stepFailed[StepRevokeSystemPrivileges] || stepFailed[StepRevokeDatabasePrivileges] {
		fmt.Fprintf(&b, "Admin privileges of user %s could not be fully revoked.", name)
	} else {
		fmt.Fprintf(&b, "Admin privileges have been revoked from user %s.", name)
	}
	switch dbFailed, roleFailed := stepFailed[StepDropDatabase], stepFailed[StepDropRole]; {
	case dbFailed && roleFailed:
		fmt.Fprintf(&b, " Database and user %s could not be dropped.", name)
	case dbFailed:
		fmt.Fprintf(&b, " User %s has been dropped; database %s could not be dropped.", name, name)
	case roleFailed:
		fmt.Fprintf(&b, " Database %s has been dropped; user %s could not be dropped.", name, name)
	default:
		fmt.Fprintf(&b, " Database and user %s have been dropped.", name)
	}

	if len(failedSecrets) == 0 {
		fmt.Fprintf(&b, " All secrets tagged key=%s , value=%s were deleted successfully.", model.TenantTagKey, name)
	} else {
		fmt.Fprintf(&b, " Deleted %d of %d secrets tagged key=%s , value=%s; failed: %s.",
			len(ids)-len(failedSecrets), len(ids), model.TenantTagKey, name, strings.Join(failedSecrets, ", "))
	}
	if len(failures) > 0 {
		msgs := make([]string, 0, len(failures))
		for _, f := range failures {
			msgs = append(msgs, fmt.Sprintf("%s (%v)", f.Step, f.Err))
		}
		fmt.Fprintf(&b, " Best-effort steps failed: %s.", strings.Join(msgs, "; "))
	}
	return b.String()
}
