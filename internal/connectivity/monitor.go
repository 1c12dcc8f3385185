package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"backhaul/internal/config"
	"backhaul/internal/logging"
)

// ProbeFunc checks reachability of the remote endpoint. A nil error means
// online.
type ProbeFunc func(ctx context.Context) error

// MonitorSettings tunes the probe loop.
type MonitorSettings struct {
	Interval time.Duration
	Timeout  time.Duration
}

// MonitorSettingsFromConfig derives probe settings from application config.
func MonitorSettingsFromConfig(cfg *config.Config) MonitorSettings {
	return MonitorSettings{
		Interval: time.Duration(cfg.Connectivity.ProbeInterval) * time.Second,
		Timeout:  time.Duration(cfg.Connectivity.ProbeTimeout) * time.Second,
	}
}

func (s MonitorSettings) withDefaults() MonitorSettings {
	if s.Interval <= 0 {
		s.Interval = 15 * time.Second
	}
	if s.Timeout <= 0 {
		s.Timeout = 5 * time.Second
	}
	return s
}

// Monitor is a Source backed by a periodic probe against the remote endpoint.
// It starts offline and reaches its first real level after the initial probe.
type Monitor struct {
	probe    ProbeFunc
	settings MonitorSettings
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	online  bool

	bcast broadcaster

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor builds a monitor using the given probe.
func NewMonitor(probe ProbeFunc, settings MonitorSettings, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		probe:    probe,
		settings: settings.withDefaults(),
		logger:   logging.NewComponentLogger(logger, "connectivity"),
	}
}

// Online reports the level observed by the most recent probe.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a transition listener.
func (m *Monitor) Subscribe(fn Listener) func() {
	return m.bcast.add(fn)
}

// Start launches the probe loop. The first probe runs immediately.
func (m *Monitor) Start(ctx context.Context) error {
	if m.probe == nil {
		return errors.New("connectivity monitor requires a probe")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("connectivity monitor already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.ctx = runCtx
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.loop()
	return nil
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	m.poll()

	ticker := time.NewTicker(m.settings.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *Monitor) poll() {
	ctx := m.ctx
	if ctx == nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.settings.Timeout)
	err := m.probe(probeCtx)
	cancel()

	// A probe aborted by shutdown says nothing about reachability.
	if ctx.Err() != nil {
		return
	}
	m.setOnline(err == nil, err)
}

func (m *Monitor) setOnline(online bool, cause error) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		m.logger.Info("remote endpoint reachable",
			logging.String(logging.FieldEventType, "connectivity_online"),
		)
	} else {
		m.logger.Warn("remote endpoint unreachable",
			logging.Error(cause),
			logging.String(logging.FieldEventType, "connectivity_offline"),
			logging.String(logging.FieldErrorHint, "check network access and remote.base_url"),
		)
	}
	m.bcast.emit(online)
}
