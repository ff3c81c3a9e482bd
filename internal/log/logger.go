// SPDX-License-Identifier: MIT

// Package log is the process-wide leveled logger. It wraps the standard
// library logger with an atomically settable threshold so the level can be
// changed from configuration while the analysis goroutine is logging.
//
// Never call it from the capture callback: formatting allocates.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

var currentLevel atomic.Uint32

var (
	loggerMu sync.RWMutex
	logger   = stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)
)

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// Configure applies the configured level name. debug forces LevelDebug.
func Configure(level string, debug bool) error {
	if debug {
		SetLevel(LevelDebug)
		return nil
	}
	lvl, ok := ParseLevel(level)
	SetLevel(lvl)
	if !ok {
		return fmt.Errorf("unknown log level %q, using %s", level, lvl)
	}
	return nil
}

// SetOutput redirects log output. The TUI points it at a file so log lines
// do not tear the alternate screen.
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	logger.SetOutput(w)
	loggerMu.Unlock()
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

func output(level LogLevel, msg string) {
	loggerMu.RLock()
	// Pad INFO/WARN so messages line up with the five-letter levels.
	if len(level.String()) == 4 {
		logger.Printf("[%s]  %s", level, msg)
	} else {
		logger.Printf("[%s] %s", level, msg)
	}
	loggerMu.RUnlock()
}

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		output(LevelDebug, fmt.Sprintf(format, v...))
	}
}

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		output(LevelInfo, fmt.Sprintf(format, v...))
	}
}

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		output(LevelWarn, fmt.Sprintf(format, v...))
	}
}

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		output(LevelError, fmt.Sprintf(format, v...))
	}
}

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func Fatalf(format string, v ...any) {
	output(LevelFatal, fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Limiter suppresses repeats of a message inside a minimum interval. It is
// meant for conditions that persist across many ticks, such as a full
// handoff queue. Not safe for concurrent use.
type Limiter struct {
	interval   time.Duration
	last       time.Time
	suppressed int
	now        func() time.Time
}

// NewLimiter returns a limiter that lets one message through per interval.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{interval: interval, now: time.Now}
}

// Allow reports whether a message may be logged now, and how many calls were
// suppressed since the last allowed one.
func (l *Limiter) Allow() (bool, int) {
	now := l.now()
	if !l.last.IsZero() && now.Sub(l.last) < l.interval {
		l.suppressed++
		return false, 0
	}
	suppressed := l.suppressed
	l.last = now
	l.suppressed = 0
	return true, suppressed
}
