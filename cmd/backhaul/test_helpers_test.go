package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"backhaul/internal/config"
	"backhaul/internal/daemon"
	"backhaul/internal/ipc"
	"backhaul/internal/logging"
	"backhaul/internal/queue"
	"backhaul/internal/reconciler"
	"backhaul/internal/store"
	"backhaul/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	queue      *queue.Queue
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	cancel     context.CancelFunc
}

// setupCLITestEnv builds a daemon behind a live IPC socket plus a config file
// the CLI can load. The queue stays offline so enqueued operations remain
// pending and visible.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := writeTestConfig(t, cfg)

	st := testsupport.MustOpenStore(t, cfg)

	q, err := queue.New(st, queue.NewRegistry(), queue.SettingsFromConfig(cfg), nil,
		queue.WithOnlineCheck(func() bool { return false }))
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}

	coordinator, err := reconciler.New(q, logging.NewNop())
	if err != nil {
		t.Fatalf("reconciler.New: %v", err)
	}

	d, err := daemon.New(cfg, st, q, coordinator, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socketPath, d, logging.NewNop(), cancel)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("unix sockets unavailable: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	env := &cliTestEnv{
		cfg:        cfg,
		store:      st,
		queue:      q,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})

	return env
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	rendered, err := cfg.Render()
	if err != nil {
		t.Fatalf("render config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
