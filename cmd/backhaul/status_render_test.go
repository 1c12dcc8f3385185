package main

import (
	"fmt"
	"strings"
	"testing"

	"backhaul/internal/config"
	"backhaul/internal/ipc"
	"backhaul/internal/reconciler"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, statusStyles[statusOK].color) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestSystemStatusLinesOffline(t *testing.T) {
	cfg := config.Default()
	cfg.Remote.BaseURL = "https://api.example.com"
	resp := &ipc.StatusResponse{Running: false, StorePath: "/tmp/backhaul.db"}

	lines := systemStatusLines(resp, &cfg, false)
	joined := strings.Join(lines, "\n")
	requireContains(t, joined, "Not running")
	requireContains(t, joined, "https://api.example.com")
	requireContains(t, joined, "/tmp/backhaul.db")
	if strings.Contains(joined, "Connectivity") {
		t.Fatal("connectivity line should be omitted when daemon is down")
	}
}

func TestSystemStatusLinesRunning(t *testing.T) {
	cfg := config.Default()
	cfg.Remote.BaseURL = "https://api.example.com"
	cfg.Notifications.NtfyTopic = "backhaul-alerts"
	resp := &ipc.StatusResponse{
		Running: true,
		Online:  false,
		Reconciler: reconciler.Status{
			State:     reconciler.StateError,
			LastError: "2 operations exhausted retries",
		},
	}

	lines := systemStatusLines(resp, &cfg, false)
	joined := strings.Join(lines, "\n")
	requireContains(t, joined, "[OK] Running")
	requireContains(t, joined, "Offline (writes are queued locally)")
	requireContains(t, joined, "2 operations exhausted retries")
	requireContains(t, joined, "[OK] Configured")
}
