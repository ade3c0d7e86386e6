package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	SILENT // No logging
)

var levelNames = [...]string{DEBUG: "DEBUG", INFO: "INFO", WARN: "WARN", ERROR: "ERROR", SILENT: "SILENT"}

// Logger provides leveled logging with module support
type Logger struct {
	mu    sync.Mutex
	level LogLevel
	entry *logrus.Logger
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the global logger (call once at startup)
func Init(level LogLevel, output io.Writer, useColor bool) {
	once.Do(func() {
		defaultLogger = New(level, output, useColor)
	})
}

// New creates a new Logger instance
func New(level LogLevel, output io.Writer, useColor bool) *Logger {
	if output == nil {
		output = os.Stderr
	}

	lr := logrus.New()
	lr.SetOutput(output)
	lr.SetFormatter(&logrus.TextFormatter{
		ForceColors:     useColor,
		DisableColors:   !useColor,
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05.000000",
	})

	l := &Logger{entry: lr}
	l.SetLevel(level)
	return l
}

func toLogrus(level LogLevel) logrus.Level {
	switch level {
	case DEBUG:
		return logrus.DebugLevel
	case INFO:
		return logrus.InfoLevel
	case WARN:
		return logrus.WarnLevel
	case ERROR:
		return logrus.ErrorLevel
	default:
		return logrus.PanicLevel
	}
}

// SetLevel changes the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.entry.SetLevel(toLogrus(level))
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *Logger) log(level LogLevel, module string, format string, args ...interface{}) {
	if level < l.GetLevel() || level >= SILENT {
		return
	}

	var entry logrus.FieldLogger = l.entry
	if module != "" {
		entry = l.entry.WithField("module", module)
	}

	message := fmt.Sprintf(format, args...)
	switch level {
	case DEBUG:
		entry.Debug(message)
	case INFO:
		entry.Info(message)
	case WARN:
		entry.Warn(message)
	case ERROR:
		entry.Error(message)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(module string, format string, args ...interface{}) {
	l.log(DEBUG, module, format, args...)
}

// Info logs an info message
func (l *Logger) Info(module string, format string, args ...interface{}) {
	l.log(INFO, module, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(module string, format string, args ...interface{}) {
	l.log(WARN, module, format, args...)
}

// Error logs an error message
func (l *Logger) Error(module string, format string, args ...interface{}) {
	l.log(ERROR, module, format, args...)
}

// Package-level helpers write through the logger set up by Init and
// discard everything before that.

// SetLevel sets the global log level
func SetLevel(level LogLevel) {
	if defaultLogger != nil {
		defaultLogger.SetLevel(level)
	}
}

// GetLevel returns the global log level
func GetLevel() LogLevel {
	if defaultLogger != nil {
		return defaultLogger.GetLevel()
	}
	return INFO
}

func logDefault(level LogLevel, module, format string, args []interface{}) {
	if defaultLogger != nil {
		defaultLogger.log(level, module, format, args...)
	}
}

// Debug logs a debug message using the global logger
func Debug(module string, format string, args ...interface{}) {
	logDefault(DEBUG, module, format, args)
}

// Info logs an info message using the global logger
func Info(module string, format string, args ...interface{}) {
	logDefault(INFO, module, format, args)
}

// Warn logs a warning message using the global logger
func Warn(module string, format string, args ...interface{}) {
	logDefault(WARN, module, format, args)
}

// Error logs an error message using the global logger
func Error(module string, format string, args ...interface{}) {
	logDefault(ERROR, module, format, args)
}

// ParseLevel parses a level name, case-insensitively
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "silent", "none", "off":
		return SILENT, nil
	}
	return INFO, fmt.Errorf("invalid log level: %s", s)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}
