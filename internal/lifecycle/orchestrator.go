// Package lifecycle creates and drops tenant databases: a database and a
// login role of the same name, plus a vault secret holding the role's
// credentials.
package lifecycle

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/dbmanager/internal/config"
	"github.com/edvin/dbmanager/internal/journal"
	"github.com/edvin/dbmanager/internal/metrics"
	"github.com/edvin/dbmanager/internal/model"
	"github.com/edvin/dbmanager/internal/postgres"
	"github.com/edvin/dbmanager/internal/secrets"
)

// SecretStore is the vault used for admin and tenant credentials.
type SecretStore interface {
	GetSecret(ctx context.Context, id string) (*model.SecretRecord, error)
	CreateSecret(ctx context.Context, databaseName, username, host string, port int, password string) (string, error)
	RotateSecret(ctx context.Context, id string, record model.SecretRecord) error
	FindSecretsByTag(ctx context.Context, key, value string) ([]string, error)
	DeleteSecret(ctx context.Context, id string) error
}

// Options configures an Orchestrator.
type Options struct {
	// AdminSecretID identifies the vault secret with the engine's root credentials.
	AdminSecretID string
	// AdminDatabase is the database admin connections target. Defaults to "postgres".
	AdminDatabase string
	// TLS returns the TLS config for a server host. Nil means plaintext.
	TLS            func(host string) (*tls.Config, error)
	ConnectTimeout time.Duration
	// DeletePolicy is config.DeletePolicyBestEffort (default) or
	// config.DeletePolicyAllOrNothing.
	DeletePolicy      string
	DeleteConcurrency int
}

// reservedNames can never be managed as tenants.
var reservedNames = map[string]bool{
	"postgres":  true,
	"template0": true,
	"template1": true,
	"rdsadmin":  true,
}

// Orchestrator handles lifecycle requests. Each Handle call is independent;
// no state is shared between invocations beyond the injected dependencies.
type Orchestrator struct {
	secrets SecretStore
	dial    postgres.Dialer
	journal journal.Journal
	metrics *metrics.Collectors
	opts    Options
	logger  zerolog.Logger
}

// New creates an Orchestrator. A nil journal keeps cursors in process memory.
func New(store SecretStore, dial postgres.Dialer, j journal.Journal, m *metrics.Collectors, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.AdminDatabase == "" {
		opts.AdminDatabase = "postgres"
	}
	if opts.DeletePolicy == "" {
		opts.DeletePolicy = config.DeletePolicyBestEffort
	}
	if opts.DeleteConcurrency < 1 {
		opts.DeleteConcurrency = 1
	}
	if dial == nil {
		dial = postgres.PgxDialer
	}
	logger = logger.With().Str("component", "lifecycle").Logger()
	if j == nil {
		j = journal.NewLog(logger)
	}
	return &Orchestrator{
		secrets: store,
		dial:    dial,
		journal: j,
		metrics: m,
		opts:    opts,
		logger:  logger,
	}
}

// Handle runs one request to completion and returns its response.
func (o *Orchestrator) Handle(ctx context.Context, req model.Request) model.Response {
	start := time.Now()
	logger := o.logger.With().
		Str("request_id", req.RequestID).
		Str("operation", string(req.Operation)).
		Str("database", req.DatabaseName).
		Logger()

	resp := o.handle(logger.WithContext(ctx), req, logger)

	o.metrics.ObserveOperation(operationLabel(req.Operation), resp.StatusCode)
	ev := logger.Info()
	if !resp.Success() {
		ev = logger.Warn().Str("error", resp.Error)
	}
	ev.Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("request handled")
	return resp
}

// operationLabel keeps caller-supplied operation names out of metric labels.
func operationLabel(op model.Operation) string {
	switch op {
	case model.OperationCreateDatabase, model.OperationDropDatabase, model.OperationSelect:
		return string(op)
	}
	return "unsupported"
}

func (o *Orchestrator) handle(ctx context.Context, req model.Request, logger zerolog.Logger) model.Response {
	if err := req.Validate(); err != nil {
		return badRequest(model.ErrorTagValidation, "Event is invalid")
	}

	switch req.Operation {
	case model.OperationCreateDatabase, model.OperationDropDatabase:
		if err := o.checkTenantName(req.DatabaseName); err != nil {
			return badRequest(model.ErrorTagValidation, "Invalid database name: "+err.Error())
		}
	case model.OperationSelect:
	default:
		return badRequest(model.ErrorTagUnsupportedOperation, fmt.Sprintf("Operation not supported: %s", req.Operation))
	}

	admin, resp, ok := o.loadAdminSecret(ctx, logger)
	if !ok {
		return resp
	}
	if req.Operation != model.OperationSelect && req.DatabaseName == admin.Username {
		return badRequest(model.ErrorTagValidation, "Invalid database name: name of the admin role is reserved")
	}

	tlsCfg, err := o.tlsFor(admin.Host)
	if err != nil {
		return internalError("Internal Server Error", err)
	}

	r := &run{
		o:         o,
		operation: req.Operation,
		name:      req.DatabaseName,
		runID:     req.RequestID,
		admin:     admin,
		tls:       tlsCfg,
		logger:    logger,
	}

	switch req.Operation {
	case model.OperationCreateDatabase:
		return o.createDatabase(ctx, r)
	case model.OperationDropDatabase:
		return o.dropDatabase(ctx, r)
	default:
		return o.selectNow(ctx, r)
	}
}

func (o *Orchestrator) checkTenantName(name string) error {
	if err := postgres.ValidateIdentifier(name); err != nil {
		return err
	}
	if reservedNames[name] || name == o.opts.AdminDatabase {
		return fmt.Errorf("%q is reserved", name)
	}
	return nil
}

// loadAdminSecret fetches and checks the root secret. When ok is false resp
// holds the response to return.
func (o *Orchestrator) loadAdminSecret(ctx context.Context, logger zerolog.Logger) (*model.SecretRecord, model.Response, bool) {
	admin, err := o.secrets.GetSecret(ctx, o.opts.AdminSecretID)
	switch {
	case errors.Is(err, secrets.ErrNotFound):
		return nil, notFound("Secret not found: " + o.opts.AdminSecretID), false
	case errors.Is(err, secrets.ErrMalformed):
		return nil, badRequest(model.ErrorTagMalformedSecret, "Secret malformed, missing required keys"), false
	case err != nil:
		return nil, internalError("Internal Server Error", err), false
	}

	if err := admin.Validate(); err != nil {
		logger.Warn().Err(err).Msg("admin secret rejected")
		return nil, badRequest(model.ErrorTagMalformedSecret, "Secret malformed, missing required keys"), false
	}
	if admin.Engine != model.EnginePostgres {
		return nil, badRequest(model.ErrorTagUnsupportedEngine, "Unsupported engine"), false
	}
	return admin, model.Response{}, true
}

func (o *Orchestrator) tlsFor(host string) (*tls.Config, error) {
	if o.opts.TLS == nil {
		return nil, nil
	}
	return o.opts.TLS(host)
}

func badRequest(tag, message string) model.Response {
	return model.NewErrorResponse(http.StatusBadRequest, tag, message)
}

func notFound(message string) model.Response {
	return model.NewErrorResponse(http.StatusNotFound, model.ErrorTagNotFound, message)
}

func internalError(prefix string, err error) model.Response {
	return model.NewErrorResponse(http.StatusInternalServerError, model.ErrorTagInternal, prefix+": "+err.Error())
}
