package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/dbferry/dbferry/pkg/config"
)

// New creates the root structured logger from the configured level.
// Components derive their own sub-loggers via With().Str("component", ...).
func New(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDevMode() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
