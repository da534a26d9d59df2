// Package logging wires zerolog the way the rest of the platform expects:
// console output in development, JSON in production, one base logger
// handed out to every component which then tags itself with "component".
package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/config"
)

// New returns a configured root logger for the given environment.
func New(cfg *config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if cfg.IsDevelopment() && cfg.LogLevel == "" {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out zerolog.ConsoleWriter
	if cfg.IsDevelopment() {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
		return zerolog.New(out).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// ForFile returns a logger scoped to one ingestion file.
func ForFile(base zerolog.Logger, fileID string) zerolog.Logger {
	return base.With().Str("file_id", fileID).Logger()
}

// ForClaim returns a logger scoped to one claim within a file.
func ForClaim(base zerolog.Logger, fileID, claimID string) zerolog.Logger {
	return base.With().Str("file_id", fileID).Str("claim_id", claimID).Logger()
}
