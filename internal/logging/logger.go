package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/dbmanager/internal/config"
)

// NewLogger creates a structured zerolog.Logger with the service and region
// from the config. Empty fields are omitted.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()

	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.AWSRegion != "" {
		ctx = ctx.Str("region", cfg.AWSRegion)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
