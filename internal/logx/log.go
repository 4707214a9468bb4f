// Package logx provides the process-wide logging helper.
//
// It follows the teacher repo's logf idiom: a single gated printf wrapper
// rather than a structured-logging dependency, extended with a level tag
// since this server has enough moving parts (matchmaker, registry, store)
// that undifferentiated output stops being useful.
package logx

import (
	"fmt"
	"log"
	"time"
)

const logDate string = `2006-01-02T15:04:05.000-07:00`

// Logger gates output on a verbose flag, matching the teacher's Config.verbose.
type Logger struct {
	Verbose bool
}

func New(verbose bool) *Logger {
	return &Logger{Verbose: verbose}
}

func (l *Logger) Infof(format string, args ...any) {
	l.printf("INFO", format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.printf("WARN", format, args...)
}

// Errorf always prints, verbose or not — operators need to see failures.
func (l *Logger) Errorf(format string, args ...any) {
	log.Printf("%s | ERROR | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func (l *Logger) printf(level, format string, args ...any) {
	if !l.Verbose {
		return
	}
	log.Printf("%s | %s | "+format, append([]any{time.Now().Format(logDate), level}, args...)...)
}

// Errf is a convenience for formatting a wrapped error message without a logger instance.
func Errf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
