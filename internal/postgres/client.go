package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AdminClient issues administrative statements over a single connection to
// one database on the server. A client is not safe for concurrent use.
type AdminClient struct {
	cfg    ConnConfig
	dial   Dialer
	conn   Conn
	logger zerolog.Logger
}

// NewAdminClient creates a client for the database named in cfg. No
// connection is opened until Connect.
func NewAdminClient(cfg ConnConfig, dial Dialer, logger zerolog.Logger) *AdminClient {
	if dial == nil {
		dial = PgxDialer
	}
	return &AdminClient{
		cfg:  cfg,
		dial: dial,
		logger: logger.With().
			Str("component", "postgres-admin").
			Str("target_database", cfg.Database).
			Logger(),
	}
}

// Database returns the name of the database this client connects to.
func (c *AdminClient) Database() string {
	return c.cfg.Database
}

// Connected reports whether a connection is open.
func (c *AdminClient) Connected() bool {
	return c.conn != nil
}

// Connect opens the connection. Calling Connect on a connected client is a no-op.
func (c *AdminClient) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	conn, err := c.dial(ctx, c.cfg)
	if err != nil {
		return err
	}
	c.conn = conn
	c.logger.Debug().Str("host", c.cfg.Host).Int("port", c.cfg.Port).Msg("connected")
	return nil
}

// End closes the connection. Calling End on a closed client is a no-op.
func (c *AdminClient) End(ctx context.Context) error {
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	if err := conn.Close(ctx); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	c.logger.Debug().Msg("connection closed")
	return nil
}

func (c *AdminClient) exec(ctx context.Context, sql string) error {
	return c.execLogged(ctx, sql, sql)
}

// execLogged runs sql but logs display, so secrets never reach the log.
func (c *AdminClient) execLogged(ctx context.Context, sql, display string) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	c.logger.Debug().Str("sql", display).Msg("exec")
	_, err := c.conn.Exec(ctx, sql)
	return err
}

// CreateDatabase creates the named database. Fails with the engine error if
// the database already exists.
func (c *AdminClient) CreateDatabase(ctx context.Context, name string) error {
	ident, err := quoteIdent(name)
	if err != nil {
		return err
	}
	if err := c.exec(ctx, "CREATE DATABASE "+ident); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

// CreateUser creates a login role with the given name and no password.
func (c *AdminClient) CreateUser(ctx context.Context, name string) error {
	ident, err := quoteIdent(name)
	if err != nil {
		return err
	}
	if err := c.exec(ctx, "CREATE ROLE "+ident+" WITH LOGIN"); err != nil {
		return fmt.Errorf("create role %s: %w", name, err)
	}
	return nil
}

// DropUser drops the named role.
func (c *AdminClient) DropUser(ctx context.Context, name string) error {
	ident, err := quoteIdent(name)
	if err != nil {
		return err
	}
	if err := c.exec(ctx, "DROP ROLE "+ident); err != nil {
		return fmt.Errorf("drop role %s: %w", name, err)
	}
	return nil
}

// ChangePassword sets the password of the named role.
func (c *AdminClient) ChangePassword(ctx context.Context, name, password string) error {
	ident, err := quoteIdent(name)
	if err != nil {
		return err
	}
	lit, err := quoteLiteral(password)
	if err != nil {
		return fmt.Errorf("change password for %s: %w", name, err)
	}
	stmt := "ALTER ROLE " + ident + " WITH LOGIN PASSWORD "
	if err := c.execLogged(ctx, stmt+lit, stmt+"'<redacted>'"); err != nil {
		return fmt.Errorf("change password for %s: %w", name, err)
	}
	return nil
}

// KillSessions terminates every session connected to the named database
// other than this one and returns how many were terminated.
func (c *AdminClient) KillSessions(ctx context.Context, name string) (int, error) {
	if err := ValidateIdentifier(name); err != nil {
		return 0, err
	}
	if c.conn == nil {
		return 0, ErrNotConnected
	}
	c.logger.Debug().Str("sql", killSessionsSQL).Str("database", name).Msg("query")
	var n int
	if err := c.conn.QueryRow(ctx, killSessionsSQL, name).Scan(&n); err != nil {
		return 0, fmt.Errorf("terminate sessions on %s: %w", name, err)
	}
	return n, nil
}

// DropDatabase terminates the sessions connected to the named database and
// drops it. If sessions reconnect in between, the returned error wraps
// ErrDatabaseInUse.
func (c *AdminClient) DropDatabase(ctx context.Context, name string) error {
	ident, err := quoteIdent(name)
	if err != nil {
		return err
	}
	n, err := c.KillSessions(ctx, name)
	if err != nil {
		return err
	}
	if n > 0 {
		c.logger.Info().Str("database", name).Int("sessions", n).Msg("terminated sessions before drop")
	}
	if err := c.exec(ctx, "DROP DATABASE "+ident); err != nil {
		if sqlState(err) == codeObjectInUse {
			return fmt.Errorf("drop database %s: %w: %w", name, ErrDatabaseInUse, err)
		}
		return fmt.Errorf("drop database %s: %w", name, err)
	}
	return nil
}

// GrantAdminPrivilegesSystemContext grants the role full control of its
// database. Runs on the administrative database and stops at the first error.
func (c *AdminClient) GrantAdminPrivilegesSystemContext(ctx context.Context, name string) error {
	return c.grant(ctx, name, systemGrants)
}

// GrantAdminPrivilegesDatabaseContext grants the role control of the public
// schema of its database. The client must be connected to that database.
func (c *AdminClient) GrantAdminPrivilegesDatabaseContext(ctx context.Context, name string) error {
	if err := c.requireDatabase(name); err != nil {
		return err
	}
	return c.grant(ctx, name, databaseGrants)
}

// RevokeAdminPrivilegesSystemContext revokes what the system-context grant
// gave. Every statement runs; objects that no longer exist are ignored.
func (c *AdminClient) RevokeAdminPrivilegesSystemContext(ctx context.Context, name string) error {
	return c.revoke(ctx, name, systemRevokes)
}

// RevokeAdminPrivilegesDatabaseContext revokes what the database-context grant
// gave. The client must be connected to the tenant database.
func (c *AdminClient) RevokeAdminPrivilegesDatabaseContext(ctx context.Context, name string) error {
	if err := c.requireDatabase(name); err != nil {
		return err
	}
	return c.revoke(ctx, name, databaseRevokes)
}

func (c *AdminClient) requireDatabase(name string) error {
	if c.cfg.Database != name {
		return fmt.Errorf("%w: need %q, connected to %q", ErrWrongContext, name, c.cfg.Database)
	}
	return nil
}

func (c *AdminClient) grant(ctx context.Context, name string, stmts []string) error {
	ident, err := quoteIdent(name)
	if err != nil {
		return err
	}
	for _, tmpl := range stmts {
		stmt := fmt.Sprintf(tmpl, ident)
		if err := c.exec(ctx, stmt); err != nil {
			return fmt.Errorf("grant privileges to %s: %w", name, err)
		}
	}
	return nil
}

func (c *AdminClient) revoke(ctx context.Context, name string, stmts []string) error {
	ident, err := quoteIdent(name)
	if err != nil {
		return err
	}
	var errs []error
	for _, tmpl := range stmts {
		stmt := fmt.Sprintf(tmpl, ident)
		err := c.exec(ctx, stmt)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotConnected):
			return err
		case IsNotExist(err):
			c.logger.Info().Bool("benign", true).Str("sql", stmt).Err(err).Msg("revoke skipped")
		default:
			c.logger.Warn().Str("sql", stmt).Err(err).Msg("revoke failed")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("revoke privileges from %s: %w", name, errs[0])
	}
	return nil
}

// Now returns the server's current time.
func (c *AdminClient) Now(ctx context.Context) (time.Time, error) {
	if c.conn == nil {
		return time.Time{}, ErrNotConnected
	}
	var now time.Time
	if err := c.conn.QueryRow(ctx, nowSQL).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("select now: %w", err)
	}
	return now, nil
}

// DatabaseExists reports whether the named database exists.
func (c *AdminClient) DatabaseExists(ctx context.Context, name string) (bool, error) {
	return c.exists(ctx, databaseExistsSQL, name)
}

// RoleExists reports whether the named role exists.
func (c *AdminClient) RoleExists(ctx context.Context, name string) (bool, error) {
	return c.exists(ctx, roleExistsSQL, name)
}

func (c *AdminClient) exists(ctx context.Context, sql, name string) (bool, error) {
	if err := ValidateIdentifier(name); err != nil {
		return false, err
	}
	if c.conn == nil {
		return false, ErrNotConnected
	}
	var ok bool
	if err := c.conn.QueryRow(ctx, sql, name).Scan(&ok); err != nil {
		return false, fmt.Errorf("check existence of %s: %w", name, err)
	}
	return ok, nil
}
