package testsupport

import (
	"path/filepath"
	"testing"

	"overtone/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.ArtifactDir = filepath.Join(base, "artifacts")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Pool.QueuePollInterval = 1
	cfg.Monitor.SampleInterval = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithWorkers pins the worker pool sizing on the test config.
func WithWorkers(workers, minWorkers, maxWorkers int) ConfigOption {
	return func(c *config.Config) {
		c.Pool.Workers = workers
		c.Pool.MinWorkers = minWorkers
		c.Pool.MaxWorkers = maxWorkers
	}
}

// WithJobTimeout overrides the engine job timeout in seconds.
func WithJobTimeout(seconds int) ConfigOption {
	return func(c *config.Config) {
		c.Engine.JobTimeout = seconds
	}
}
