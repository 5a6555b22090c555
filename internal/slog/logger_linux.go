//go:build linux

// Package slog wraps UNIX syslog behind a small leveled-logging API so
// the transport package logs diagnostics the way blitter.com/go/xs's
// logger package does (build-tagged syslog on Linux, a stderr fallback
// on Windows), generalized from bare pass-through wrappers into leveled
// methods with key=value fields, per SPEC_FULL.md §3.
package slog

import (
	sl "log/syslog"
)

type priority = sl.Priority

const (
	facility priority = sl.LOG_USER
)

func dial(tag string) (writer, error) {
	w, err := sl.New(facility, tag)
	if err != nil {
		return nil, err
	}
	return w, nil
}
