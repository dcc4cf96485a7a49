// Package logging provides the core daemon's process-wide leveled logger.
package logging

import (
	"io"
	"log"
	"os"
)

// Logger is a level-gated wrapper around two stdlib loggers.
type Logger struct {
	debugEnabled bool
	infoLogger   *log.Logger
	debugLogger  *log.Logger
}

var globalLogger *Logger

// Initialize sets up the global logger. All output goes to stderr so the
// core never pollutes a client's framed stdout/socket stream.
func Initialize(debugMode bool) {
	var output io.Writer = os.Stderr

	globalLogger = &Logger{
		debugEnabled: debugMode,
		infoLogger:   log.New(output, "", log.LstdFlags),
		debugLogger:  log.New(output, "", log.LstdFlags),
	}
}

// Info logs an informational message. Always shown.
func Info(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.infoLogger.Printf(format, args...)
	}
}

// Debug logs a debug message. Only shown when debug mode is enabled.
func Debug(format string, args ...interface{}) {
	if globalLogger != nil && globalLogger.debugEnabled {
		globalLogger.debugLogger.Printf("DEBUG: "+format, args...)
	}
}

// Error logs an error message. Always shown.
func Error(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.infoLogger.Printf("ERROR: "+format, args...)
	}
}

// IsDebugEnabled reports whether debug logging is currently enabled.
func IsDebugEnabled() bool {
	return globalLogger != nil && globalLogger.debugEnabled
}
