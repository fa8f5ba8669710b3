package config

// QueueConfig defines one scheduling domain: its name and how many pending
// tasks it will hold before Enqueue starts rejecting.
type QueueConfig struct {
	MaxSize int `json:"max_size,omitempty"` // Pending-task capacity (0 = default)
}

// DatabaseConfig locates the SQLite file backing the task repository.
type DatabaseConfig struct {
	Path string `json:"path,omitempty"` // File path; empty = default under the home dir
}

// RetryConfig tunes the backoff between retry attempts. Zero values fall back
// to the retry package defaults.
type RetryConfig struct {
	InitialIntervalMS int     `json:"initial_interval_ms,omitempty"`
	MaxIntervalMS     int     `json:"max_interval_ms,omitempty"`
	MaxElapsedTimeMS  int     `json:"max_elapsed_time_ms,omitempty"`
	Multiplier        float64 `json:"multiplier,omitempty"`
	Randomization     float64 `json:"randomization,omitempty"`
}

// CoreConfig is the top-level configuration for an embedding executor.
type CoreConfig struct {
	Queues   map[string]QueueConfig `json:"queues"`
	Database DatabaseConfig         `json:"database"`
	Retry    RetryConfig            `json:"retry"`
}
