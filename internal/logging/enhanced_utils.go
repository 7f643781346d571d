package logging

import (
	"context"
	"time"

	syncerrors "dvsync/internal/errors"
)

// LogField provides a structured way to add fields to logs
type LogField struct {
	Key   string
	Value interface{}
}

// EnhancedLogger wraps the existing StructuredLogger with additional utilities
type EnhancedLogger struct {
	Logger
	component string
}

// componentLevel is the level every new component logger is created
// with. SetComponentLevel overrides it for callers (the CLI's
// --verbose flag) that want debug output across every component
// without threading a level through each GetComponentLogger call.
var componentLevel = INFO

// SetComponentLevel changes the level used by every subsequent
// NewEnhancedLogger/GetComponentLogger call.
func SetComponentLevel(level LogLevel) {
	componentLevel = level
}

// NewEnhancedLogger creates an enhanced logger for a component
func NewEnhancedLogger(component string) *EnhancedLogger {
	baseLogger := NewLogger(componentLevel)
	return &EnhancedLogger{
		Logger:    baseLogger.WithComponent(component),
		component: component,
	}
}

// WithContext creates a logger with context information
func (l *EnhancedLogger) WithContext(ctx context.Context) *EnhancedLogger {
	traceID := getTraceIDFromContext(ctx)
	newLogger := l.Logger.WithTraceID(traceID)

	return &EnhancedLogger{
		Logger:    newLogger,
		component: l.component,
	}
}

// WithError logs a sync error with its code and details when present
func (l *EnhancedLogger) WithError(err error) *EnhancedLogger {
	if err == nil {
		return l
	}

	if syncErr, ok := err.(*syncerrors.SyncError); ok {
		l.Error("sync error occurred",
			"error", syncErr.Message,
			"code", string(syncErr.Code),
			"retryable", syncErr.Retryable(),
		)
	} else {
		l.Error("error occurred", "error", err.Error())
	}

	return l
}

// LogOperation logs the start and completion of an operation
func (l *EnhancedLogger) LogOperation(operation string, fn func() error) error {
	startTime := time.Now()
	l.Info("starting operation", "operation", operation)

	err := fn()
	duration := time.Since(startTime)

	if err != nil {
		l.Error("operation failed",
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
		return err
	}

	l.Info("operation completed",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// LogSlowOperation logs operations that exceed expected duration
func (l *EnhancedLogger) LogSlowOperation(operation string, duration, expected time.Duration) {
	l.Warn("slow operation detected",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
		"expected_ms", expected.Milliseconds(),
		"slowdown_factor", float64(duration)/float64(expected),
	)
}

// getTraceIDFromContext extracts trace ID from context
func getTraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// Global loggers for the components that make up the sync engine.
var (
	SyncManagerLogger  = NewEnhancedLogger("syncmanager")
	VersioningLogger   = NewEnhancedLogger("versioning")
	VectorStoreLogger  = NewEnhancedLogger("vectorstore")
	SyncStateLogger    = NewEnhancedLogger("syncstate")
	DeletionLogger     = NewEnhancedLogger("deletions")
	ChunkingLogger     = NewEnhancedLogger("chunking")
	BackendQueueLogger = NewEnhancedLogger("backendqueue")
	CLILogger          = NewEnhancedLogger("cli")
)

// GetComponentLogger returns an enhanced logger for a specific component
func GetComponentLogger(component string) *EnhancedLogger {
	return NewEnhancedLogger(component)
}
