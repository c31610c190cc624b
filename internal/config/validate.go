package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePool(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.ArtifactDir == "" {
		return errors.New("paths.artifact_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validatePool() error {
	if err := ensurePositiveMap(map[string]int{
		"pool.workers":             c.Pool.Workers,
		"pool.min_workers":         c.Pool.MinWorkers,
		"pool.max_workers":         c.Pool.MaxWorkers,
		"pool.queue_poll_interval": c.Pool.QueuePollInterval,
	}); err != nil {
		return err
	}
	if c.Pool.MinWorkers > c.Pool.MaxWorkers {
		return errors.New("pool.min_workers must not exceed pool.max_workers")
	}
	if c.Pool.Workers < c.Pool.MinWorkers || c.Pool.Workers > c.Pool.MaxWorkers {
		return errors.New("pool.workers must fall within [pool.min_workers, pool.max_workers]")
	}
	if c.Pool.HeartbeatInterval <= 0 {
		return errors.New("pool.heartbeat_interval must be positive")
	}
	if c.Pool.HeartbeatTimeout <= 0 {
		return errors.New("pool.heartbeat_timeout must be positive")
	}
	if c.Pool.HeartbeatTimeout <= c.Pool.HeartbeatInterval {
		return errors.New("pool.heartbeat_timeout must be greater than pool.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateEngine() error {
	return ensurePositiveMap(map[string]int{
		"engine.job_timeout":       c.Engine.JobTimeout,
		"engine.max_input_seconds": c.Engine.MaxInputSeconds,
	})
}

func (c *Config) validateMonitor() error {
	if err := ensurePositiveMap(map[string]int{
		"monitor.sample_interval":       c.Monitor.SampleInterval,
		"monitor.error_window":          c.Monitor.ErrorWindow,
		"monitor.queue_depth_threshold": c.Monitor.QueueDepthThreshold,
	}); err != nil {
		return err
	}
	if c.Monitor.ErrorRateThreshold <= 0 || c.Monitor.ErrorRateThreshold > 1 {
		return errors.New("monitor.error_rate_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
