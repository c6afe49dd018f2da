package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotConnected is returned when a statement is issued before Connect.
	ErrNotConnected = errors.New("admin client is not connected")
	// ErrDatabaseInUse is returned when DROP DATABASE fails because sessions
	// reconnected after they were terminated. The drop can be retried.
	ErrDatabaseInUse = errors.New("database is being accessed by other users")
	// ErrWrongContext is returned when a database-context statement sequence
	// is issued on a connection to a different database.
	ErrWrongContext = errors.New("connection targets the wrong database")
)

// SQLSTATE codes the lifecycle cares about.
const (
	codeUndefinedObject    = "42704"
	codeInvalidCatalogName = "3D000"
	codeUndefinedTable     = "42P01"
	codeUndefinedFunction  = "42883"
	codeInvalidSchemaName  = "3F000"
	codeDuplicateDatabase  = "42P04"
	codeDuplicateObject    = "42710"
	codeObjectInUse        = "55006"
)

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsNotExist reports whether err means the role, database or object being
// acted on does not exist.
func IsNotExist(err error) bool {
	if err == nil {
		return false
	}
	switch sqlState(err) {
	case codeUndefinedObject, codeInvalidCatalogName, codeUndefinedTable, codeUndefinedFunction, codeInvalidSchemaName:
		return true
	}
	return strings.Contains(err.Error(), "does not exist")
}

// IsAlreadyExists reports whether err means the database or role already exists.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	switch sqlState(err) {
	case codeDuplicateDatabase, codeDuplicateObject:
		return true
	}
	return false
}

// IsInUse reports whether err means the database still has active sessions.
func IsInUse(err error) bool {
	if errors.Is(err, ErrDatabaseInUse) {
		return true
	}
	return sqlState(err) == codeObjectInUse
}
