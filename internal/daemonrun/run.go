// Package daemonrun wires the daemon process: config, logging, store, queue,
// connectivity, reconciler, and the IPC server. Both the backhauld binary and
// the CLI's hidden daemon subcommand call Run.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"backhaul/internal/config"
	"backhaul/internal/connectivity"
	"backhaul/internal/daemon"
	"backhaul/internal/ipc"
	"backhaul/internal/logging"
	"backhaul/internal/notifications"
	"backhaul/internal/queue"
	"backhaul/internal/reconciler"
	"backhaul/internal/remote"
	"backhaul/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the backhaul daemon runtime loop and blocks until the process
// receives SIGINT/SIGTERM or the IPC Stop request arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "backhaul.log")},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "backhauld.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	defer st.Close()

	client := remote.NewClient(cfg)
	registry := queue.NewRegistry()
	if err := client.RegisterDefaultHandlers(registry); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}

	monitor := connectivity.NewMonitor(func(ctx context.Context) error {
		return client.Probe(ctx, cfg.Connectivity.ProbePath)
	}, connectivity.MonitorSettingsFromConfig(cfg), logger)

	q, err := queue.New(st, registry, queue.SettingsFromConfig(cfg), logger,
		queue.WithOnlineCheck(monitor.Online))
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}

	scheduler := connectivity.NewScheduler(monitor, q, cfg.Queue.AutoRetry, logger)
	notifier := notifications.NewService(cfg)

	coordinator, err := reconciler.New(q, logger,
		reconciler.WithSource(monitor),
		reconciler.WithNotifier(notifier))
	if err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}

	d, err := daemon.New(cfg, st, q, coordinator, monitor, scheduler, notifier, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger, cancel)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	logger.Info("backhaul daemon ready",
		logging.String("socket", cfg.SocketPath()),
		logging.String("store", cfg.StorePath()))

	<-signalCtx.Done()
	logger.Info("backhaul daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
