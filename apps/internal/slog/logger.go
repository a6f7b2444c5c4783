// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

// Package slog adapts the standard library's structured logger for use inside
// the library. Callers hand us a slog.Handler; everything internal logs
// through the *slog.Logger built from it.
package slog

import (
	"log/slog"
)

type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

type Logger = slog.Logger

// New creates a logger from the given handler. A nil handler yields the
// process-wide default logger so internal logging never needs a nil check.
func New(h slog.Handler) *Logger {
	if h == nil {
		return slog.Default()
	}
	return slog.New(h)
}

// Field creates a slog field for any value.
func Field(key string, value any) any {
	return slog.Any(key, value)
}
