package config

// Config is the on-disk daemon configuration (JSON or YAML).
type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders"`
	Notifier  NotifierConfig  `json:"notifier,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler,omitempty"`
}

// HTTPConfig controls the JSON API listener.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8080"

	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	IdleTimeout     string `json:"idle_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`

	// RatePerSec limits requests per client IP. 0 disables limiting.
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`

	// Metrics exposes Prometheus metrics at GET /metrics.
	Metrics bool `json:"metrics,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the todo store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/todos.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// RemindersConfig drives the periodic reminder scan.
//
// Defaults (when fields are omitted/zero):
//   - schedule: "30s"
//   - timeout: "0s" (disabled)
type RemindersConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule accepts a Go duration ("30s"), HH:MM interval or cron spec.
	Schedule string `json:"schedule,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
	// RunOnStart scans once right after startup instead of waiting a period.
	RunOnStart bool `json:"run_on_start,omitempty"`
}

// NotifierConfig controls delivery of "reminder due" notifications.
type NotifierConfig struct {
	Enabled    bool `json:"enabled"`
	Workers    int  `json:"workers,omitempty"`
	QueueSize  int  `json:"queue_size,omitempty"`
	RatePerSec int  `json:"rate_per_sec,omitempty"`
	RetryMax   int  `json:"retry_max,omitempty"`

	RetryBase   string `json:"retry_base,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty"`
}

// SchedulerConfig controls the recurring task runner.
type SchedulerConfig struct {
	// Timezone for cron specs (IANA name). Empty means local time.
	Timezone       string `json:"timezone,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}
