package redisinmem

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// Logger interface for custom logging implementations
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// MetricsCollector interface for metrics collection
type MetricsCollector interface {
	// RecordCommandProcessed records a processed command with its duration
	RecordCommandProcessed(cmd string, duration time.Duration)

	// RecordError records an error event
	RecordError(errorType string)

	// RecordConnectionOpened records an accepted client connection
	RecordConnectionOpened()

	// RecordConnectionClosed records a closed client connection
	RecordConnectionClosed()

	// RecordSnapshotLoad records the outcome of the startup snapshot load
	RecordSnapshotLoad(keys int, duration time.Duration)
}

// hclogLogger is the default Logger, backed by hashicorp/go-hclog
type hclogLogger struct {
	logger hclog.Logger
}

// NewHCLogger wraps an hclog.Logger as a Logger. A nil logger selects an
// info-level logger writing to stderr.
func NewHCLogger(logger hclog.Logger) Logger {
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:  "redis-inmemory-server",
			Level: hclog.Info,
		})
	}
	return &hclogLogger{logger: logger}
}

func (l *hclogLogger) Debug(msg string, fields ...Field) {
	l.logger.Debug(msg, flattenFields(fields)...)
}

func (l *hclogLogger) Info(msg string, fields ...Field) {
	l.logger.Info(msg, flattenFields(fields)...)
}

func (l *hclogLogger) Error(msg string, fields ...Field) {
	l.logger.Error(msg, flattenFields(fields)...)
}

func flattenFields(fields []Field) []interface{} {
	args := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return args
}
