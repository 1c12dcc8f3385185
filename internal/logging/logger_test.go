package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"backhaul/internal/logging"
)

func TestNewConsoleWritesComponentAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "retry-queue").Info("operation enqueued",
		logging.String(logging.FieldOpType, "http.post"),
		logging.Int(logging.FieldAttempt, 1),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "[retry-queue]") {
		t.Fatalf("expected component marker, got %q", line)
	}
	if !strings.Contains(line, "op_type=http.post") {
		t.Fatalf("expected op_type field, got %q", line)
	}
	if !strings.Contains(line, "attempt=1") {
		t.Fatalf("expected attempt field, got %q", line)
	}
}

func TestNewConsoleRespectsLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "warn",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("suppressed")
	logger.Warn("kept")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), "suppressed") {
		t.Fatalf("expected info line suppressed, got %q", content)
	}
	if !strings.Contains(string(content), "kept") {
		t.Fatalf("expected warn line kept, got %q", content)
	}
}

func TestNewJSONEmitsCanonicalKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")

	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("sync completed", logging.Int("processed", 3))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("parse json log line: %v", err)
	}
	if entry["msg"] != "sync completed" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["level"] != "info" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatal("expected ts key")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestContextFieldsRoundTrip(t *testing.T) {
	ctx := logging.WithOperation(context.Background(), "op-123", "http.post")
	fields := logging.ContextFields(ctx)
	if len(fields) != 2 {
		t.Fatalf("expected 2 context fields, got %d", len(fields))
	}

	if got := logging.ContextFields(context.Background()); got != nil {
		t.Fatalf("expected no fields on bare context, got %v", got)
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("discarded", logging.Error(os.ErrClosed))
	if logger.Enabled(context.Background(), 8) {
		t.Fatal("expected noop logger to report disabled")
	}
}
