// Package logging provides structured logging with trace ID support.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys.
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID.
	TraceIDKey ContextKey = "trace_id"
	// UserIDKey is the context key for the user a log line concerns.
	UserIDKey ContextKey = "user_id"
	// ServiceKey is the context key for the component name.
	ServiceKey ContextKey = "service"
)

// Logger wraps logrus.Logger with compensation-engine specific fields.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a new Logger instance for a named component.
func New(component, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, component: component}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment variables.
// Defaults to "info" and "json" when unset.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithContext creates a log entry carrying trace/user IDs found in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)

	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if userID := ctx.Value(UserIDKey); userID != nil {
		entry = entry.WithField("user_id", userID)
	}
	return entry
}

// WithFields creates a log entry with custom fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// WithError creates a log entry carrying an error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"component": l.component,
		"error":     err.Error(),
	})
}

// SetOutput sets the logger output.
func (l *Logger) SetOutput(output io.Writer) {
	l.Logger.SetOutput(output)
}

// NewTraceID generates a new trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID attaches a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithUserID attaches a user ID to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// LogLedgerOp logs a ledger substrate operation (credit/debit/hold/release/finalize).
func (l *Logger) LogLedgerOp(ctx context.Context, direction, category, userID string, amount int64, txID string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"direction": direction,
		"category":  category,
		"user_id":   userID,
		"amount":    amount,
		"tx_id":     txID,
	}).Info("ledger operation")
}

// LogSessionRun logs the outcome of one session-engine run.
func (l *Logger) LogSessionRun(ctx context.Context, dateKey string, sessionIndex, pairsMatched int, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"date_key":      dateKey,
		"session_index": sessionIndex,
		"pairs_matched": pairsMatched,
		"duration_ms":   duration.Milliseconds(),
	}).Info("session run complete")
}

var defaultLogger *Logger

// InitDefault initializes the package-level default logger.
func InitDefault(component, level, format string) {
	defaultLogger = New(component, level, format)
}

// Default returns the package-level default logger, creating a fallback if unset.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("engine", "info", "json")
	}
	return defaultLogger
}
