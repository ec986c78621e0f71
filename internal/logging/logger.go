package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// LogLevel is a logging verbosity threshold, lowest (TRACE) to highest
// (ERROR).
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger writes to a console sink and a file sink independently, each
// with its own minimum level — file sinks typically capture everything
// down to TRACE while the console only shows INFO and above.
type Logger struct {
	component string

	consoleLogger *log.Logger
	fileLogger    *log.Logger
	file          *os.File

	minConsoleLevel LogLevel
	minFileLevel    LogLevel
}

var defaultLogger = &Logger{
	component:       "default",
	consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
	minConsoleLevel: INFO,
	minFileLevel:    ERROR,
}

// NewLogger creates a component-scoped logger writing to
// logs/<component>_<timestamp>.log as well as stdout.
func NewLogger(component string) (*Logger, error) {
	if err := os.MkdirAll("logs", 0755); err != nil {
		return nil, fmt.Errorf("logging: create logs dir: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join("logs", fmt.Sprintf("%s_%s.log", component, timestamp))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}

	return &Logger{
		component:       component,
		consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
		fileLogger:      log.New(file, "", log.LstdFlags),
		file:            file,
		minConsoleLevel: INFO,
		minFileLevel:    TRACE,
	}, nil
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if level < l.minConsoleLevel && level < l.minFileLevel {
		return
	}
	message := fmt.Sprintf("[%s] [%s] %s", level.String(), l.component, fmt.Sprintf(format, args...))

	if l.fileLogger != nil && level >= l.minFileLevel {
		l.fileLogger.Println(message)
	}
	if l.consoleLogger != nil && level >= l.minConsoleLevel {
		l.consoleLogger.Println(message)
	}
}

func (l *Logger) Trace(format string, args ...interface{}) { l.log(TRACE, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(WARN, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

// Package-level convenience functions log through the process-wide
// default logger (console only, INFO and above) — used by code that
// has no component context of its own.

func LogTrace(format string, args ...interface{}) { defaultLogger.log(TRACE, format, args...) }
func LogDebug(format string, args ...interface{}) { defaultLogger.log(DEBUG, format, args...) }
func LogInfo(format string, args ...interface{})  { defaultLogger.log(INFO, format, args...) }
func LogWarn(format string, args ...interface{})  { defaultLogger.log(WARN, format, args...) }
func LogError(format string, args ...interface{}) { defaultLogger.log(ERROR, format, args...) }

// LogTick logs one completed kernel tick: its total elapsed time and the
// accepted/rejected action counts.
func LogTick(tick uint64, elapsed time.Duration, accepted, rejected int) {
	LogDebug("tick %d: %v elapsed, %d accepted, %d rejected", tick, elapsed, accepted, rejected)
}

// LogPhase logs the duration of a single tick phase (validate, apply,
// persist, ...), used to find where a slow tick is spending its time.
func LogPhase(tick uint64, phase string, elapsed time.Duration) {
	LogTrace("tick %d phase %q: %v", tick, phase, elapsed)
}

// LogRejectedAction logs an action the kernel rejected along with the
// reason, for operator-facing audit.
func LogRejectedAction(tick uint64, actorID string, kind interface{}, reason string) {
	LogWarn("tick %d: rejected action %v from %s: %s", tick, kind, actorID, reason)
}

// LogReplayConflict logs a fatal replay mismatch before the process
// aborts startup.
func LogReplayConflict(detail string) {
	LogError("replay conflict: %s", detail)
}
