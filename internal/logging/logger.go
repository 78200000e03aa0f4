// Package logging provides structured logging for StayOps.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu   sync.Mutex
	root = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Init configures the process-wide root logger. Level is one of
// debug, info, warn, error; anything else falls back to info.
func Init(out io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()

	lvl := parseLevel(level)
	root = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return root.With().Str("component", name).Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
