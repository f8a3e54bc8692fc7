package cron

import (
	"fmt"
	"strings"
	"time"
)

// LogLevel controls what the scheduler logs.
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	// LogLevelError logs failed runs.
	LogLevelError
	// LogLevelInfo adds retries and a line per finished run.
	LogLevelInfo
	// LogLevelDebug adds the cron engine events.
	LogLevelDebug
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation sets the zone cron expressions are read in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger routes scheduler logs to logger. pipeline.Logger satisfies
// Logger.
func WithLogger(logger Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithLogLevel(level LogLevel) Option {
	return func(s *Scheduler) {
		s.logLevel = level
	}
}

// WithErrorHandler receives every failed run, panics included. Without one
// failures are logged at error level.
func WithErrorHandler(handler func(error)) Option {
	return func(s *Scheduler) {
		if handler != nil {
			s.errorHandler = handler
		}
	}
}

// engineLogger adapts Logger to the cron engine logger. A nil logger
// discards everything.
type engineLogger struct {
	logger Logger
	level  LogLevel
}

func (l *engineLogger) Info(msg string, keysAndValues ...any) {
	if l.logger == nil || l.level < LogLevelDebug {
		return
	}
	l.logger.Info("cron %s %s", msg, formatKeysAndValues(keysAndValues))
}

func (l *engineLogger) Error(err error, msg string, keysAndValues ...any) {
	if l.logger == nil || l.level < LogLevelError {
		return
	}
	l.logger.Error("cron %s: %v %s", msg, err, formatKeysAndValues(keysAndValues))
}

func formatKeysAndValues(kv []any) string {
	parts := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		parts = append(parts, fmt.Sprintf("%v=%v", kv[i], kv[i+1]))
	}
	return strings.Join(parts, " ")
}
