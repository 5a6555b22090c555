package slog

import (
	"fmt"
	"strings"
	"sync"
)

// writer is the subset of *log/syslog.Writer (or its Windows stand-in)
// the Logger drives.
type writer interface {
	Debug(string) error
	Info(string) error
	Warning(string) error
	Err(string) error
	Crit(string) error
	Close() error
}

// Logger is a leveled logger backed by syslog on Linux and a stderr
// fallback on Windows. The zero value discards everything, so a
// transport.Session constructed without an explicit Logger never
// panics.
type Logger struct {
	mu sync.Mutex
	w  writer
}

// New dials syslog (or its platform fallback) under tag.
func New(tag string) (*Logger, error) {
	w, err := dial(tag)
	if err != nil {
		return nil, err
	}
	return &Logger{w: w}, nil
}

// Discard is a Logger that drops every message; useful as a default
// before a caller installs a real one.
var Discard = &Logger{}

// Close releases the underlying syslog connection, if any.
func (l *Logger) Close() error {
	if l == nil || l.w == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}

func (l *Logger) log(fn func(writer, string) error, msg string, kv ...interface{}) {
	if l == nil || l.w == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = fn(l.w, formatLine(msg, kv...))
}

func formatLine(msg string, kv ...interface{}) string {
	if len(kv) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}

// Debug logs at LOG_DEBUG. kv is an alternating key/value sequence
// appended to msg as "key=value" pairs.
func (l *Logger) Debug(msg string, kv ...interface{}) {
	l.log(func(w writer, s string) error { return w.Debug(s) }, msg, kv...)
}

// Info logs at LOG_INFO.
func (l *Logger) Info(msg string, kv ...interface{}) {
	l.log(func(w writer, s string) error { return w.Info(s) }, msg, kv...)
}

// Warn logs at LOG_WARNING.
func (l *Logger) Warn(msg string, kv ...interface{}) {
	l.log(func(w writer, s string) error { return w.Warning(s) }, msg, kv...)
}

// Error logs at LOG_ERR.
func (l *Logger) Error(msg string, kv ...interface{}) {
	l.log(func(w writer, s string) error { return w.Err(s) }, msg, kv...)
}

// Critical logs at LOG_CRIT, reserved for conditions that force the
// transport to tear down the connection (spec.md §7).
func (l *Logger) Critical(msg string, kv ...interface{}) {
	l.log(func(w writer, s string) error { return w.Crit(s) }, msg, kv...)
}
