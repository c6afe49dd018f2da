package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/edvin/dbmanager/internal/awsclient"
	"github.com/edvin/dbmanager/internal/config"
	"github.com/edvin/dbmanager/internal/db"
	"github.com/edvin/dbmanager/internal/journal"
	"github.com/edvin/dbmanager/internal/lifecycle"
	"github.com/edvin/dbmanager/internal/logging"
	"github.com/edvin/dbmanager/internal/metrics"
	"github.com/edvin/dbmanager/internal/postgres"
	"github.com/edvin/dbmanager/internal/secrets"
)

// app holds the dependencies shared by the run modes.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	reg     *prometheus.Registry
	orch    *lifecycle.Orchestrator
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func loadConfig(mode string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(mode); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, mode string) (*app, error) {
	cfg, err := loadConfig(mode)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logging.NewLogger(cfg),
		reg:    prometheus.NewRegistry(),
	}
	a.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := secrets.NewSecretsManagerClient(ctx, cfg.AWSRegion, cfg.SecretsEndpoint,
		secrets.Options{RecoveryWindowDays: cfg.SecretRecoveryWindowDays}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create secrets client: %w", err)
	}

	j, err := a.newJournal(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.orch = lifecycle.New(store, postgres.PgxDialer, j, metrics.NewCollectors(a.reg), lifecycle.Options{
		AdminSecretID:     cfg.AdminSecretID,
		AdminDatabase:     cfg.AdminDatabase,
		TLS:               cfg.PostgresTLS,
		ConnectTimeout:    cfg.ConnectTimeout,
		DeletePolicy:      cfg.SecretDeletePolicy,
		DeleteConcurrency: cfg.SecretDeleteConcurrency,
	}, a.logger)

	return a, nil
}

func (a *app) newJournal(ctx context.Context) (journal.Journal, error) {
	switch a.cfg.JournalBackend {
	case config.JournalPostgres:
		pool, err := db.NewJournalPool(ctx, a.cfg.JournalDatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		if err := metrics.RegisterPgxPoolMetrics(a.reg, pool); err != nil {
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}
		a.logger.Info().Msg("using postgres journal")
		return journal.NewPostgres(pool), nil

	case config.JournalS3:
		awsCfg, err := awsclient.LoadConfig(ctx, a.cfg.AWSRegion, a.cfg.S3Endpoint)
		if err != nil {
			return nil, err
		}
		a.logger.Info().Str("bucket", a.cfg.JournalBucket).Msg("using s3 journal")
		return journal.NewS3(journal.NewS3Client(awsCfg, a.cfg.S3Endpoint), a.cfg.JournalBucket, a.cfg.JournalPrefix), nil

	default:
		return journal.NewLog(a.logger), nil
	}
}
