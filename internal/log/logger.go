// Package log wraps log/slog with component-tagged loggers, shared field
// names and HTTP request logging helpers.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a slog.Logger tagged with a component name.
type Logger struct {
	*slog.Logger
	base      slog.Handler
	attrs     []any
	component string
}

func newLogger(base slog.Handler, component string, attrs []any) *Logger {
	return &Logger{
		Logger:    slog.New(base).With(FieldComponent, component).With(attrs...),
		base:      base,
		attrs:     attrs,
		component: component,
	}
}

// Config holds logger configuration
type Config struct {
	Level     slog.Level
	Format    string // "text" or "json"
	Component string
	Handler   slog.Handler // overrides Level and Format when set
	Output    io.Writer    // defaults to stdout
}

// ParseLevel maps "debug", "info", "warn" or "error" to a slog level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewHandler builds a text or JSON handler writing to w.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		out := config.Output
		if out == nil {
			out = os.Stdout
		}
		handler = NewHandler(out, config.Format, config.Level)
	}
	component := config.Component
	if component == "" {
		component = ComponentApp
	}
	return newLogger(handler, component, nil)
}

// With returns a new logger with the given attributes
func (l *Logger) With(args ...any) *Logger {
	attrs := append(append([]any{}, l.attrs...), args...)
	return newLogger(l.base, l.component, attrs)
}

// WithComponent returns a logger for a sub-component, keeping attributes
// added with With. The component field is replaced, not repeated.
func (l *Logger) WithComponent(component string) *Logger {
	return newLogger(l.base, component, l.attrs)
}

// SetDefault sets the default logger for the application
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}

// Component returns the logger's component name
func (l *Logger) Component() string {
	return l.component
}
