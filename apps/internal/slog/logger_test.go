// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

package slog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestLoggerConsoleOutput(t *testing.T) {
	var buf bytes.Buffer

	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	logger := New(handler)

	logger.Log(context.Background(), slog.LevelInfo, "info message", slog.Any("username", "john_doe"), slog.Int("age", 30))
	logger.Log(context.Background(), slog.LevelError, "error message", slog.String("module", "user-service"), slog.Int("retry", 3))
	logger.Log(context.Background(), slog.LevelWarn, "warn message", slog.Int("free_space_mb", 100))
	logger.Log(context.Background(), slog.LevelDebug, "debug message", slog.String("module", "main"))

	output := buf.String()
	expected := []struct {
		msg      string
		contains []string
	}{
		{"info message", []string{`"username":"john_doe"`, `"age":30}`}},
		{"error message", []string{`"module":"user-service"`, `"retry":3}`}},
		{"warn message", []string{`"free_space_mb":100}`}},
		{"debug message", []string{`"module":"main"`}},
	}

	for _, e := range expected {
		if !bytes.Contains([]byte(output), []byte(e.msg)) {
			t.Errorf("expected log message %q not found in output", e.msg)
		}
		for _, attr := range e.contains {
			if !bytes.Contains([]byte(output), []byte(attr)) {
				t.Errorf("expected attribute %q not found in output for message %q", attr, e.msg)
			}
		}
	}
}

func TestNewNilHandler(t *testing.T) {
	if logger := New(nil); logger == nil {
		t.Fatal("expected the default logger for a nil handler, got nil")
	}
}
