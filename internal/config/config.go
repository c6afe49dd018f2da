package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Secret deletion policies applied when a tenant database is dropped.
const (
	DeletePolicyBestEffort   = "best-effort"
	DeletePolicyAllOrNothing = "all-or-nothing"
)

// Journal backends.
const (
	JournalLog      = "log"
	JournalPostgres = "postgres"
	JournalS3       = "s3"
)

type Config struct {
	ServiceName string `yaml:"serviceName"`
	AWSRegion   string `yaml:"region"`
	LogLevel    string `yaml:"logLevel"`

	// AdminSecretID identifies the vault secret holding the root credentials
	// of the PostgreSQL engine.
	AdminSecretID   string `yaml:"secretArn"`
	SecretsEndpoint string `yaml:"secretsEndpoint"`
	AdminDatabase   string `yaml:"adminDatabase"`

	DBSSLMode      string        `yaml:"sslMode"`
	DBTLSCACert    string        `yaml:"tlsCACert"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`

	SecretDeletePolicy       string `yaml:"secretDeletePolicy"`
	SecretDeleteConcurrency  int    `yaml:"secretDeleteConcurrency"`
	SecretRecoveryWindowDays int    `yaml:"secretRecoveryWindowDays"`

	JournalBackend     string `yaml:"journalBackend"`
	JournalDatabaseURL string `yaml:"journalDatabaseURL"`
	JournalBucket      string `yaml:"journalBucket"`
	JournalPrefix      string `yaml:"journalPrefix"`
	S3Endpoint         string `yaml:"s3Endpoint"`

	HTTPListenAddr    string `yaml:"httpListenAddr"`
	MetricsListenAddr string `yaml:"metricsListenAddr"`
}

// Load builds the config from an optional YAML file named by CONFIG_FILE,
// overridden by any non-empty environment variables.
func Load() (*Config, error) {
	file := &Config{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, file); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	connectTimeout, err := getDuration("DB_CONNECT_TIMEOUT", or(file.ConnectTimeout, 10*time.Second))
	if err != nil {
		return nil, err
	}
	concurrency, err := getInt("SECRET_DELETE_CONCURRENCY", or(file.SecretDeleteConcurrency, 1))
	if err != nil {
		return nil, err
	}
	recoveryDays, err := getInt("SECRET_RECOVERY_WINDOW_DAYS", file.SecretRecoveryWindowDays)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServiceName:              getEnv("SERVICE_NAME", or(file.ServiceName, "database-manager")),
		AWSRegion:                getEnv("AWS_REGION", file.AWSRegion),
		LogLevel:                 getEnv("LOG_LEVEL", or(file.LogLevel, "info")),
		AdminSecretID:            getEnv("ADMIN_SECRET_ID", file.AdminSecretID),
		SecretsEndpoint:          getEnv("SECRETS_ENDPOINT", file.SecretsEndpoint),
		AdminDatabase:            getEnv("ADMIN_DATABASE", or(file.AdminDatabase, "postgres")),
		DBSSLMode:                getEnv("DB_SSLMODE", or(file.DBSSLMode, "require")),
		DBTLSCACert:              getEnv("DB_TLS_CA_CERT", file.DBTLSCACert),
		ConnectTimeout:           connectTimeout,
		SecretDeletePolicy:       getEnv("SECRET_DELETE_POLICY", or(file.SecretDeletePolicy, DeletePolicyBestEffort)),
		SecretDeleteConcurrency:  concurrency,
		SecretRecoveryWindowDays: recoveryDays,
		JournalBackend:           getEnv("JOURNAL_BACKEND", or(file.JournalBackend, JournalLog)),
		JournalDatabaseURL:       getEnv("JOURNAL_DATABASE_URL", file.JournalDatabaseURL),
		JournalBucket:            getEnv("JOURNAL_BUCKET", file.JournalBucket),
		JournalPrefix:            getEnv("JOURNAL_PREFIX", or(file.JournalPrefix, "database-manager/journal/")),
		S3Endpoint:               getEnv("S3_ENDPOINT", file.S3Endpoint),
		HTTPListenAddr:           getEnv("HTTP_LISTEN_ADDR", or(file.HTTPListenAddr, ":8090")),
		MetricsListenAddr:        getEnv("METRICS_LISTEN_ADDR", file.MetricsListenAddr),
	}

	return cfg, nil
}

// Validate checks that the fields required by the given run mode are set.
// Supported modes are "lambda", "serve", "invoke" and "migrate".
func (c *Config) Validate(mode string) error {
	var missing []string

	switch mode {
	case "lambda", "serve", "invoke":
		if c.AdminSecretID == "" {
			missing = append(missing, "ADMIN_SECRET_ID")
		}
		if c.AWSRegion == "" {
			missing = append(missing, "AWS_REGION")
		}
		if mode == "serve" && c.HTTPListenAddr == "" {
			missing = append(missing, "HTTP_LISTEN_ADDR")
		}
	case "migrate":
		if c.JournalDatabaseURL == "" {
			missing = append(missing, "JOURNAL_DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown run mode %q", mode)
	}

	switch c.JournalBackend {
	case JournalLog:
	case JournalPostgres:
		if c.JournalDatabaseURL == "" && mode != "migrate" {
			missing = append(missing, "JOURNAL_DATABASE_URL")
		}
	case JournalS3:
		if c.JournalBucket == "" {
			missing = append(missing, "JOURNAL_BUCKET")
		}
	default:
		return fmt.Errorf("JOURNAL_BACKEND must be one of %s, %s, %s", JournalLog, JournalPostgres, JournalS3)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if c.SecretDeletePolicy != DeletePolicyBestEffort && c.SecretDeletePolicy != DeletePolicyAllOrNothing {
		return fmt.Errorf("SECRET_DELETE_POLICY must be %s or %s", DeletePolicyBestEffort, DeletePolicyAllOrNothing)
	}
	if c.SecretDeleteConcurrency < 1 {
		return fmt.Errorf("SECRET_DELETE_CONCURRENCY must be at least 1")
	}
	if c.SecretRecoveryWindowDays != 0 && (c.SecretRecoveryWindowDays < 7 || c.SecretRecoveryWindowDays > 30) {
		return fmt.Errorf("SECRET_RECOVERY_WINDOW_DAYS must be 0 or between 7 and 30")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// or returns v unless it is the zero value, in which case it returns fallback.
func or[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}
