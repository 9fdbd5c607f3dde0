// Package logging sets up the structured logger for the service.
package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Logger wraps slog so callers get structured key-value logging with a
// colorized console handler.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger writing to stderr at the given level.
func NewLogger(level slog.Level) *Logger {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339Nano,
	})
	return &Logger{Logger: slog.New(handler)}
}

// SetDefault installs this logger as the process-wide slog default so that
// library code logging through slog shares the same handler.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}
