package utils

import (
	"log"
	"os"
)

// Logger is a thin wrapper over the stdlib logger. All methods are safe on a
// nil receiver so callers can pass a nil logger in tests.
type Logger struct {
	std *log.Logger
}

func NewLogger() *Logger {
	return &Logger{std: log.New(os.Stdout, "", log.LstdFlags|log.LUTC)}
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.std == nil {
		return
	}
	l.std.Printf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil || l.std == nil {
		return
	}
	l.std.Printf("WARN "+format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil || l.std == nil {
		return
	}
	l.std.Printf("ERROR "+format, args...)
}
