// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"backhaul/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Remote.BaseURL = "http://127.0.0.1:0"
	cfg.Queue.InitialBackoff = 1
	cfg.Queue.MaxBackoff = 5

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithRemoteBaseURL points the config at a test server.
func WithRemoteBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Remote.BaseURL = url
	}
}
