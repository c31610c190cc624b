package config

const (
	defaultDataDir             = "~/.local/share/overtone"
	defaultArtifactDir         = "~/.local/share/overtone/artifacts"
	defaultLogDir              = "~/.local/share/overtone/logs"
	defaultAPIBind             = "127.0.0.1:7319"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultWorkers             = 2
	defaultMinWorkers          = 1
	defaultMaxWorkers          = 8
	defaultQueuePollInterval   = 2
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
	defaultJobTimeout          = 600
	defaultMaxInputSeconds     = 3600
	defaultSampleInterval      = 10
	defaultErrorWindow         = 50
	defaultQueueDepthThreshold = 1000
	defaultErrorRateThreshold  = 0.05
	defaultNotifyTimeout       = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			ArtifactDir: defaultArtifactDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Pool: Pool{
			Workers:           defaultWorkers,
			MinWorkers:        defaultMinWorkers,
			MaxWorkers:        defaultMaxWorkers,
			QueuePollInterval: defaultQueuePollInterval,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
		},
		Engine: Engine{
			JobTimeout:      defaultJobTimeout,
			MaxInputSeconds: defaultMaxInputSeconds,
		},
		Monitor: Monitor{
			SampleInterval:      defaultSampleInterval,
			ErrorWindow:         defaultErrorWindow,
			QueueDepthThreshold: defaultQueueDepthThreshold,
			ErrorRateThreshold:  defaultErrorRateThreshold,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			JobFailures:    true,
			Alerts:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
