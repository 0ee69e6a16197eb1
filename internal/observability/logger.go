// Package observability defines shared logging and metrics primitives.
package observability

import (
	"fmt"
	"log"
	"strings"
)

// Logger captures structured logging behaviours shared across layers.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key/value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

var defaultLogger Logger = noopLogger{}

// SetLogger overrides the global logger used by the system.
func SetLogger(logger Logger) {
	if logger == nil {
		defaultLogger = noopLogger{}
		return
	}
	defaultLogger = logger
}

// Log returns the current global logger instance.
func Log() Logger {
	return defaultLogger
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}

// StdLogger adapts a standard library logger to the Logger interface.
type StdLogger struct {
	logger *log.Logger
	debug  bool
}

// NewStdLogger wraps the provided stdlib logger. When logger is nil the
// process-wide default is used. Debug output is suppressed unless enabled.
func NewStdLogger(logger *log.Logger, debug bool) *StdLogger {
	if logger == nil {
		logger = log.Default()
	}
	return &StdLogger{logger: logger, debug: debug}
}

// Debug emits a debug-level line when debug logging is enabled.
func (l *StdLogger) Debug(msg string, fields ...Field) {
	if !l.debug {
		return
	}
	l.logger.Print(formatLine("DEBUG", msg, fields))
}

// Info emits an info-level line.
func (l *StdLogger) Info(msg string, fields ...Field) {
	l.logger.Print(formatLine("INFO", msg, fields))
}

// Error emits an error-level line.
func (l *StdLogger) Error(msg string, fields ...Field) {
	l.logger.Print(formatLine("ERROR", msg, fields))
}

func formatLine(level, msg string, fields []Field) string {
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(" ")
	b.WriteString(msg)
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		fmt.Fprintf(&b, "%v", field.Value)
	}
	return b.String()
}
