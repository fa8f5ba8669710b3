package config

// DefaultConfig returns the default configuration: one "default" queue with
// the standard capacity and a database under the caller's home directory.
func DefaultConfig() *CoreConfig {
	return &CoreConfig{
		Queues: map[string]QueueConfig{
			"default": {
				MaxSize: 1000,
			},
		},
		Database: DatabaseConfig{
			Path: "", // resolved to ~/.taskcore/tasks.db by LoadDefault
		},
		Retry: RetryConfig{
			InitialIntervalMS: 100,
			MaxIntervalMS:     10_000,
			MaxElapsedTimeMS:  120_000,
			Multiplier:        2.0,
			Randomization:     0.5,
		},
	}
}
