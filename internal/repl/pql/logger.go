package pql

import (
	"log"
	"strings"
)

// Logger receives translation diagnostics. Implementations must be safe for
// concurrent use.
type Logger interface {
	Errorf(format string, args ...any)
	Warnf(format string, args ...any)
}

// Level is the minimum severity a StdLogger writes.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps "debug", "info", "warn" and "error" to a Level. Unknown
// names fall back to LevelWarn.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "error":
		return LevelError
	default:
		return LevelWarn
	}
}

// StdLogger adapts a *log.Logger.
type StdLogger struct {
	l     *log.Logger
	level Level
}

// NewStdLogger wraps l, or the standard logger when l is nil.
func NewStdLogger(l *log.Logger, level Level) *StdLogger {
	if l == nil {
		l = log.Default()
	}
	return &StdLogger{l: l, level: level}
}

func (s *StdLogger) Errorf(format string, args ...any) {
	if s.level <= LevelError {
		s.l.Printf("error: "+format, args...)
	}
}

func (s *StdLogger) Warnf(format string, args ...any) {
	if s.level <= LevelWarn {
		s.l.Printf("warning: "+format, args...)
	}
}

type discard struct{}

func (discard) Errorf(string, ...any) {}
func (discard) Warnf(string, ...any)  {}

// Discard drops everything.
var Discard Logger = discard{}
