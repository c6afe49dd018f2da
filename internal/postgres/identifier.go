package postgres

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ErrInvalidIdentifier is returned for names that are not safe to use as a
// database or role identifier.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// validNameRe matches a letter or underscore followed by alphanumerics and
// underscores, up to the 63 byte identifier limit of PostgreSQL.
var validNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// ValidateIdentifier checks that a name contains only safe characters.
func ValidateIdentifier(name string) error {
	if !validNameRe.MatchString(name) {
		return fmt.Errorf("%w %q: must start with a letter or underscore and contain only alphanumerics and underscores, at most 63 characters", ErrInvalidIdentifier, name)
	}
	return nil
}

// quoteIdent validates and quotes an identifier for use in a statement.
func quoteIdent(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", err
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

// quoteLiteral quotes a string literal for statements that cannot take bind
// parameters (ALTER ROLE ... PASSWORD). Assumes standard_conforming_strings.
func quoteLiteral(s string) (string, error) {
	if strings.ContainsRune(s, 0) {
		return "", fmt.Errorf("literal contains NUL byte")
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
}
