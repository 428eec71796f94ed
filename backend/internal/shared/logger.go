// ============================================================================
// backend/internal/shared/logger.go
// Levelled logger with error reporting to Rollbar
// ============================================================================

package shared

import (
	"fmt"
	"log"
	"os"

	"github.com/rollbar/rollbar-go"
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

var levelNames = map[string]int{
	"debug": levelDebug,
	"info":  levelInfo,
	"warn":  levelWarn,
	"error": levelError,
}

// Logger writes levelled lines through a stdlib logger. Warnings and errors
// are also reported to Rollbar when a token is configured.
type Logger struct {
	std     *log.Logger
	level   int
	reports bool
}

// NewLogger builds the process logger from the service configuration
func NewLogger(config *ServiceConfig) *Logger {
	l := &Logger{
		std:   log.New(os.Stdout, fmt.Sprintf("[%s] ", config.ServiceName), log.LstdFlags|log.Lmicroseconds),
		level: levelNames[GetLogLevel(config)],
	}

	if config.RollbarToken != "" {
		rollbar.SetToken(config.RollbarToken)
		rollbar.SetEnvironment(config.Environment)
		rollbar.SetServerRoot("lms_core")
		rollbar.SetCodeVersion(config.ServiceName)
		if host, err := os.Hostname(); err == nil {
			rollbar.SetServerHost(host)
		}
		rollbar.SetEnabled(true)
		l.reports = true
	} else {
		rollbar.SetEnabled(false)
	}

	return l
}

// NewTestLogger returns a logger that only prints errors and never reports
func NewTestLogger() *Logger {
	rollbar.SetEnabled(false)
	return &Logger{std: log.New(os.Stderr, "", log.LstdFlags), level: levelError}
}

// Debugf logs a debug line
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level <= levelDebug {
		l.std.Printf("DEBUG "+format, args...)
	}
}

// Infof logs an info line
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.level <= levelInfo {
		l.std.Printf("INFO "+format, args...)
	}
}

// Warnf logs a warning and reports it
func (l *Logger) Warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.level <= levelWarn {
		l.std.Println("WARN " + msg)
	}
	if l.reports {
		rollbar.Warning(msg)
	}
}

// Errorf logs an error and reports it, attaching the acting user when known
func (l *Logger) Errorf(userID string, err error, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.std.Printf("ERROR %s: %v", msg, err)
	if !l.reports {
		return
	}
	if userID != "" {
		rollbar.SetPerson(userID, "", "")
	} else {
		rollbar.ClearPerson()
	}
	rollbar.Error(err, map[string]interface{}{"message": msg})
}

// Fatalf reports a critical failure and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.reports {
		rollbar.Critical(msg)
		rollbar.Wait()
	}
	l.std.Fatal("FATAL " + msg)
}

// Close flushes pending reports
func (l *Logger) Close() {
	if l.reports {
		rollbar.Wait()
	}
}
