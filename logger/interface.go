// Package logger defines the logging interface used across AlertHub.
// The design follows GORM's logger interface: a small leveled interface,
// a pluggable Writer, and predefined Default/Discard instances.
package logger

import (
	"context"
	"fmt"
	"time"
)

// LogLevel defines log levels
type LogLevel int

const (
	// Silent disables all logging
	Silent LogLevel = iota + 1
	// Error logs only errors
	Error
	// Warn logs warnings and errors
	Warn
	// Info logs info, warnings and errors
	Info
	// Debug logs all messages
	Debug
)

// String returns the string representation of log level
func (l LogLevel) String() string {
	switch l {
	case Silent:
		return "silent"
	case Error:
		return "error"
	case Warn:
		return "warn"
	case Info:
		return "info"
	case Debug:
		return "debug"
	default:
		return "unknown"
	}
}

// Interface is the logger contract components receive by injection
type Interface interface {
	// LogMode sets the log level and returns a new logger instance
	LogMode(level LogLevel) Interface

	// Info logs info messages
	Info(ctx context.Context, msg string, data ...interface{})

	// Warn logs warning messages
	Warn(ctx context.Context, msg string, data ...interface{})

	// Error logs error messages
	Error(ctx context.Context, msg string, data ...interface{})

	// Debug logs debug messages
	Debug(ctx context.Context, msg string, data ...interface{})

	// Trace logs a fan-out operation with its duration. fc reports the
	// operation name and how many notifications it touched.
	Trace(ctx context.Context, begin time.Time, fc func() (operation string, notifications int64), err error)
}

// Writer defines the interface for log output
type Writer interface {
	Printf(string, ...interface{})
}

// Config defines logger configuration
type Config struct {
	SlowThreshold time.Duration // operations slower than this are logged at warn
	LogLevel      LogLevel
	Colorful      bool
}

// Colors for console output
const (
	Reset      = "\033[0m"
	Red        = "\033[31m"
	Green      = "\033[32m"
	Yellow     = "\033[33m"
	Magenta    = "\033[35m"
	White      = "\033[37m"
	RedBold    = "\033[31;1m"
	YellowBold = "\033[33;1m"
	BlueBold   = "\033[34;1m"
)

// Predefined loggers
var (
	// Discard discards all log messages
	Discard Interface = New(discardWriter{}, Config{LogLevel: Silent})

	// Default writes to standard output at warn level
	Default Interface = New(consoleWriter{}, Config{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      Warn,
		Colorful:      true,
	})
)

// discardWriter discards all output
type discardWriter struct{}

func (discardWriter) Printf(string, ...interface{}) {}

// consoleWriter writes to console
type consoleWriter struct{}

func (consoleWriter) Printf(msg string, data ...interface{}) {
	fmt.Printf(msg+"\n", data...)
}
