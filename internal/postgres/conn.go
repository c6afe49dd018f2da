package postgres

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ConnConfig describes one admin connection to a PostgreSQL server.
type ConnConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	TLS            *tls.Config
	ConnectTimeout time.Duration
}

// Conn is the subset of *pgx.Conn used by the admin client.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Dialer opens a connection described by cfg.
type Dialer func(ctx context.Context, cfg ConnConfig) (Conn, error)

// PgxDialer opens a single pgx connection. Environment fallbacks (PGHOST and
// friends) are ignored so the target is exactly what cfg describes.
func PgxDialer(ctx context.Context, cfg ConnConfig) (Conn, error) {
	pgCfg, err := pgx.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("parse connection config: %w", err)
	}
	pgCfg.Host = cfg.Host
	pgCfg.Port = uint16(cfg.Port)
	pgCfg.User = cfg.User
	pgCfg.Password = cfg.Password
	pgCfg.Database = cfg.Database
	pgCfg.TLSConfig = cfg.TLS
	pgCfg.Fallbacks = nil
	pgCfg.RuntimeParams["application_name"] = "database-manager"
	if cfg.ConnectTimeout > 0 {
		pgCfg.ConnectTimeout = cfg.ConnectTimeout
	}

	conn, err := pgx.ConnectConfig(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}
	return conn, nil
}
