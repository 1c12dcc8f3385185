package config

const (
	defaultDataDir        = "~/.local/share/backhaul"
	defaultLogDir         = "~/.local/share/backhaul/logs"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultRequestTimeout = 30
	defaultProbePath      = "/healthz"
	defaultProbeInterval  = 15
	defaultProbeTimeout   = 5
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 1000
	defaultMaxBackoff     = 30000
	defaultBackoffFactor  = 2.0
	defaultNotifyTimeout  = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Remote: Remote{
			RequestTimeout: defaultRequestTimeout,
		},
		Connectivity: Connectivity{
			ProbePath:     defaultProbePath,
			ProbeInterval: defaultProbeInterval,
			ProbeTimeout:  defaultProbeTimeout,
		},
		Queue: Queue{
			MaxAttempts:    defaultMaxAttempts,
			InitialBackoff: defaultInitialBackoff,
			MaxBackoff:     defaultMaxBackoff,
			BackoffFactor:  defaultBackoffFactor,
			AutoRetry:      true,
			DrainOnStart:   true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Sync:           true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
