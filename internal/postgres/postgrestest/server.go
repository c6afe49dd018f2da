// Package postgrestest provides an in-memory stand-in for a PostgreSQL
// server that understands the statements issued by postgres.AdminClient.
package postgrestest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/dbmanager/internal/postgres"
)

// Statement is one statement received by the server.
type Statement struct {
	Database string
	SQL      string
	Args     []any
}

type failure struct {
	match string
	err   error
	times int // 0 means always
}

// Server records statements and tracks databases, roles and open connections.
type Server struct {
	mu         sync.Mutex
	databases  map[string]bool
	roles      map[string]string
	sessions   map[string]int
	open       map[string]int
	statements []Statement
	dials      []string
	failures   []*failure
	dialErrs   map[string]error
	now        time.Time
}

// NewServer returns a server holding only the administrative database.
func NewServer(adminDatabase string) *Server {
	return &Server{
		databases: map[string]bool{adminDatabase: true},
		roles:     map[string]string{},
		sessions:  map[string]int{},
		open:      map[string]int{},
		dialErrs:  map[string]error{},
		now:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Now is the time returned by SELECT NOW().
func (s *Server) Now() time.Time { return s.now }

// AddDatabase creates a database out of band.
func (s *Server) AddDatabase(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.databases[name] = true
}

// RemoveDatabase drops a database out of band.
func (s *Server) RemoveDatabase(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.databases, name)
}

// AddRole creates a role out of band.
func (s *Server) AddRole(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[name] = ""
}

// AddSessions simulates n foreign sessions on a database.
func (s *Server) AddSessions(database string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[database] += n
}

func (s *Server) HasDatabase(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.databases[name]
}

func (s *Server) HasRole(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.roles[name]
	return ok
}

// Password returns the password last set for a role.
func (s *Server) Password(role string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[role]
}

// FailOn makes every statement containing match fail with err.
func (s *Server) FailOn(match string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{match: match, err: err})
}

// FailOnce makes the next statement containing match fail with err.
func (s *Server) FailOnce(match string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{match: match, err: err, times: 1})
}

// FailDial makes connections to database fail with err.
func (s *Server) FailDial(database string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialErrs[database] = err
}

// Statements returns every statement received so far.
func (s *Server) Statements() []Statement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Statement(nil), s.statements...)
}

// SQL returns the text of every statement received so far.
func (s *Server) SQL() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.statements))
	for _, st := range s.statements {
		out = append(out, st.SQL)
	}
	return out
}

// Dials returns the database named by each connection attempt.
func (s *Server) Dials() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.dials...)
}

// OpenConns returns the number of connections not yet closed.
func (s *Server) OpenConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.open {
		n += c
	}
	return n
}

// Dialer returns a postgres.Dialer connected to this server.
func (s *Server) Dialer() postgres.Dialer {
	return func(_ context.Context, cfg postgres.ConnConfig) (postgres.Conn, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.dials = append(s.dials, cfg.Database)
		if err := s.dialErrs[cfg.Database]; err != nil {
			return nil, err
		}
		if !s.databases[cfg.Database] {
			return nil, &pgconn.PgError{
				Severity: "FATAL",
				Code:     "3D000",
				Message:  fmt.Sprintf("database %q does not exist", cfg.Database),
			}
		}
		s.open[cfg.Database]++
		return &conn{s: s, db: cfg.Database}, nil
	}
}

var identRe = regexp.MustCompile(`"((?:[^"]|"")*)"`)

func firstIdent(sql string) string {
	m := identRe.FindStringSubmatch(sql)
	if m == nil {
		return ""
	}
	return strings.ReplaceAll(m[1], `""`, `"`)
}

var passwordRe = regexp.MustCompile(`PASSWORD '((?:[^']|'')*)'`)

func roleMissing(name string) error {
	return &pgconn.PgError{Severity: "ERROR", Code: "42704", Message: fmt.Sprintf("role %q does not exist", name)}
}

func databaseMissing(name string) error {
	return &pgconn.PgError{Severity: "ERROR", Code: "3D000", Message: fmt.Sprintf("database %q does not exist", name)}
}

// record logs the statement and returns an injected failure, if any.
// Callers hold s.mu.
func (s *Server) record(db, sql string, args []any) error {
	s.statements = append(s.statements, Statement{Database: db, SQL: sql, Args: args})
	for i, f := range s.failures {
		if !strings.Contains(sql, f.match) {
			continue
		}
		if f.times == 1 {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
		}
		return f.err
	}
	return nil
}

func (s *Server) exec(db, sql string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(db, sql, nil); err != nil {
		return err
	}
	name := firstIdent(sql)
	switch {
	case strings.HasPrefix(sql, "CREATE DATABASE "):
		if s.databases[name] {
			return &pgconn.PgError{Severity: "ERROR", Code: "42P04", Message: fmt.Sprintf("database %q already exists", name)}
		}
		s.databases[name] = true
	case strings.HasPrefix(sql, "CREATE ROLE "):
		if _, ok := s.roles[name]; ok {
			return &pgconn.PgError{Severity: "ERROR", Code: "42710", Message: fmt.Sprintf("role %q already exists", name)}
		}
		s.roles[name] = ""
	case strings.HasPrefix(sql, "DROP ROLE "):
		if _, ok := s.roles[name]; !ok {
			return roleMissing(name)
		}
		delete(s.roles, name)
	case strings.HasPrefix(sql, "DROP DATABASE "):
		if !s.databases[name] {
			return databaseMissing(name)
		}
		if s.open[name] > 0 || s.sessions[name] > 0 {
			return &pgconn.PgError{Severity: "ERROR", Code: "55006", Message: fmt.Sprintf("database %q is being accessed by other users", name)}
		}
		delete(s.databases, name)
	case strings.HasPrefix(sql, "ALTER ROLE "):
		if _, ok := s.roles[name]; !ok {
			return roleMissing(name)
		}
		if m := passwordRe.FindStringSubmatch(sql); m != nil {
			s.roles[name] = strings.ReplaceAll(m[1], "''", "'")
		}
	case strings.HasPrefix(sql, "GRANT "), strings.HasPrefix(sql, "REVOKE "), strings.HasPrefix(sql, "ALTER DEFAULT PRIVILEGES "):
		if strings.Contains(sql, " ON DATABASE ") && !s.databases[name] {
			return databaseMissing(name)
		}
		role := name
		if all := identRe.FindAllStringSubmatch(sql, -1); len(all) > 0 {
			role = strings.ReplaceAll(all[len(all)-1][1], `""`, `"`)
		}
		if _, ok := s.roles[role]; !ok {
			return roleMissing(role)
		}
	}
	return nil
}

func (s *Server) query(db, sql string, args []any) row {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(db, sql, args); err != nil {
		return row{err: err}
	}
	arg := ""
	if len(args) > 0 {
		arg, _ = args[0].(string)
	}
	switch {
	case strings.Contains(sql, "pg_terminate_backend"):
		n := s.sessions[arg]
		s.sessions[arg] = 0
		return row{val: n}
	case strings.Contains(sql, "pg_database"):
		return row{val: s.databases[arg]}
	case strings.Contains(sql, "pg_roles"):
		_, ok := s.roles[arg]
		return row{val: ok}
	case strings.Contains(sql, "NOW()"):
		return row{val: s.now}
	}
	return row{err: pgx.ErrNoRows}
}

type conn struct {
	s      *Server
	db     string
	closed bool
}

var errClosed = errors.New("conn closed")

func (c *conn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if c.closed {
		return pgconn.CommandTag{}, errClosed
	}
	if err := c.s.exec(c.db, sql); err != nil {
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag(strings.SplitN(sql, " ", 2)[0]), nil
}

func (c *conn) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if c.closed {
		return row{err: errClosed}
	}
	return c.s.query(c.db, sql, args)
}

func (c *conn) Close(context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.s.mu.Lock()
	c.s.open[c.db]--
	c.s.mu.Unlock()
	return nil
}

type row struct {
	val any
	err error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 1 {
		return fmt.Errorf("expected 1 scan destination, got %d", len(dest))
	}
	switch d := dest[0].(type) {
	case *int:
		*d = r.val.(int)
	case *bool:
		*d = r.val.(bool)
	case *time.Time:
		*d = r.val.(time.Time)
	default:
		return fmt.Errorf("unsupported scan destination %T", dest[0])
	}
	return nil
}
