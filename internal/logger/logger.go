// Package logger provides slog-based component loggers.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the available log levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Logger wraps slog.Logger with component and session helpers.
type Logger struct {
	*slog.Logger
}

// ParseLevel maps a config string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LogLevelDebug:
		return LogLevelDebug
	case LogLevelWarn:
		return LogLevelWarn
	case LogLevelError:
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a text logger writing to w at the given level.
func New(level LogLevel, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.slogLevel()})
	return &Logger{Logger: slog.New(h)}
}

// NewJSON creates a JSON logger, used when running as a service.
func NewJSON(level LogLevel, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level.slogLevel()})
	return &Logger{Logger: slog.New(h)}
}

// WithComponent tags every record with a component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With("component", component)}
}

// WithSession tags every record with a session id.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{Logger: l.With("session", sessionID)}
}

var (
	mu      sync.RWMutex
	current = New(LogLevelInfo, os.Stderr)
)

// Default returns the process-wide logger.
func Default() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetDefault replaces the process-wide logger. Component loggers created
// earlier keep the handler they were built with.
func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	current = l
	mu.Unlock()
}

// NewComponentLogger returns the default logger tagged with component.
func NewComponentLogger(component string) *Logger {
	return Default().WithComponent(component)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New(LogLevelError, io.Discard)
}
