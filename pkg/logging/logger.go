package logging

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"

	"github.com/pathwatch/pathwatch/pkg/pathwatch"
)

// Logger is the main logger type. It has the novel property that it still
// functions if nil, but it doesn't log anything. It is designed to use the
// standard logger provided by the log package, so it respects any flags set
// for that logger. It is safe for concurrent usage.
type Logger struct {
	// prefix is any prefix specified for the logger.
	prefix string
	// level is the maximum level at which the logger emits messages.
	level Level
}

// rootLevel computes the level to use for the root logger based on the
// PATHWATCH_LOG_LEVEL environment variable, defaulting to info. Debug mode
// forces the debug level.
func rootLevel() Level {
	if pathwatch.DebugEnabled {
		return LevelDebug
	}
	if level, ok := NameToLevel(os.Getenv("PATHWATCH_LOG_LEVEL")); ok {
		return level
	}
	return LevelInfo
}

// RootLogger is the root logger from which all other loggers derive.
var RootLogger = &Logger{level: rootLevel()}

// NewLogger creates a logger with the specified prefix and level. It is
// primarily useful for tests and embedding; most code should derive subloggers
// from RootLogger.
func NewLogger(prefix string, level Level) *Logger {
	return &Logger{
		prefix: prefix,
		level:  level,
	}
}

// Sublogger creates a new sublogger with the specified name.
func (l *Logger) Sublogger(name string) *Logger {
	// If the logger is nil, then the sublogger will be as well.
	if l == nil {
		return nil
	}

	// Compute the new prefix.
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}

	// Create the new logger.
	return &Logger{
		prefix: prefix,
		level:  l.level,
	}
}

// output is the internal logging method.
func (l *Logger) output(calldepth int, line string) {
	// Add a prefix if necessary.
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}

	// Log.
	log.Output(calldepth, line)
}

// Info logs information with semantics equivalent to fmt.Print.
func (l *Logger) Info(v ...interface{}) {
	if l != nil && l.level >= LevelInfo {
		l.output(3, fmt.Sprint(v...))
	}
}

// Infof logs information with semantics equivalent to fmt.Printf.
func (l *Logger) Infof(format string, v ...interface{}) {
	if l != nil && l.level >= LevelInfo {
		l.output(3, fmt.Sprintf(format, v...))
	}
}

// Debug logs debugging information with semantics equivalent to fmt.Print,
// but only if the debug level (or debug mode) is enabled (otherwise it's a
// no-op).
func (l *Logger) Debug(v ...interface{}) {
	if l != nil && (l.level >= LevelDebug || pathwatch.DebugEnabled) {
		l.output(3, fmt.Sprint(v...))
	}
}

// Debugf logs debugging information with semantics equivalent to fmt.Printf,
// but only if the debug level (or debug mode) is enabled (otherwise it's a
// no-op).
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l != nil && (l.level >= LevelDebug || pathwatch.DebugEnabled) {
		l.output(3, fmt.Sprintf(format, v...))
	}
}

// Warn logs error information with a warning prefix and yellow color.
func (l *Logger) Warn(err error) {
	if l != nil && l.level >= LevelWarn {
		l.output(3, color.YellowString("Warning: %v", err))
	}
}

// Error logs error information with an error prefix and red color.
func (l *Logger) Error(err error) {
	if l != nil && l.level >= LevelError {
		l.output(3, color.RedString("Error: %v", err))
	}
}
