// Package logging provides structured logging configuration using zerolog.
//
// Logs always go to stderr (or a caller-supplied writer). Standard output
// is reserved for the NDJSON dump itself and must never carry log lines.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component names carried in the "component" field.
const (
	ComponentTransport  = "transport"
	ComponentPagination = "pagination"
	ComponentDump       = "dump"
	ComponentProgress   = "progress"
	ComponentMetrics    = "metrics"
)

// DefaultLevel keeps stderr down to notices and failures.
const DefaultLevel = "warn"

// Config holds logger configuration.
type Config struct {
	// Level is one of debug, info, warn (or warning) and error. Empty
	// means DefaultLevel.
	Level string

	// Pretty writes human-readable lines instead of JSON.
	Pretty bool

	// Output receives log lines; nil means os.Stderr.
	Output io.Writer
}

// ParseLevel maps a --log-level value onto a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return ParseLevel(DefaultLevel)
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", level)
	}
}

// Setup installs the process-wide logger. Loggers obtained from NewLogger
// afterwards inherit its level and output.
func Setup(cfg Config) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return log.Logger, nil
}

// NewLogger returns a child of the process logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithSlice returns a child of logger tagged with the slice id.
func WithSlice(logger zerolog.Logger, sliceID int) zerolog.Logger {
	return logger.With().Int("slice", sliceID).Logger()
}

// Level guidelines:
//
//   - debug: per-request and per-page detail (endpoint, hits, cursor rotation)
//   - info: run lifecycle (count, slice start and finish, slice failures,
//     final summary); failed slices also get one stderr line from the
//     orchestrator, so they are not logged above info
//   - warn: best-effort work that failed without affecting the dump
//     (scroll clearing, progress store)
//   - error: failures of the process itself, such as the metrics listener
//
// Common fields: component, slice, endpoint, status, hits, documents, run_id.
