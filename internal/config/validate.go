package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"todoreminder/internal/task/scheduler"
	logx "todoreminder/pkg/logx"
)

const (
	DefaultHTTPAddr         = "127.0.0.1:8080"
	DefaultReminderSchedule = "30s"
)

// Validate checks values a strict JSON decode cannot: durations, enums and
// cross-field rules. It reports every problem at once.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if c.HTTP.Enabled {
		addr := strings.TrimSpace(c.HTTP.Addr)
		if addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				add(fmt.Errorf("http.addr: %w", err))
			}
		}
		for path, raw := range map[string]string{
			"http.read_timeout":     c.HTTP.ReadTimeout,
			"http.write_timeout":    c.HTTP.WriteTimeout,
			"http.idle_timeout":     c.HTTP.IdleTimeout,
			"http.shutdown_timeout": c.HTTP.ShutdownTimeout,
		} {
			_, err := ParseDurationField(path, raw)
			add(err)
		}
		if c.HTTP.RatePerSec < 0 {
			add(errors.New("http.rate_per_sec: must be >= 0"))
		}
		if c.HTTP.Burst < 0 {
			add(errors.New("http.burst: must be >= 0"))
		}
	}

	if !logx.ValidLevel(c.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		add(errors.New("logging.file.path: required when file logging is enabled"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			add(errors.New("storage.path: required for sqlite"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	_, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	add(err)

	if c.Reminders.Enabled {
		if _, err := scheduler.ParseSchedule(c.ReminderSchedule()); err != nil {
			add(fmt.Errorf("reminders.schedule: %w", err))
		}
	}
	_, err = ParseDurationField("reminders.timeout", c.Reminders.Timeout)
	add(err)

	if c.Notifier.Workers < 0 || c.Notifier.QueueSize < 0 || c.Notifier.RatePerSec < 0 || c.Notifier.RetryMax < 0 {
		add(errors.New("notifier: workers, queue_size, rate_per_sec and retry_max must be >= 0"))
	}
	_, err = ParseDurationField("notifier.retry_base", c.Notifier.RetryBase)
	add(err)
	_, err = ParseDurationField("notifier.dedup_window", c.Notifier.DedupWindow)
	add(err)

	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	_, err = ParseDurationField("scheduler.default_timeout", c.Scheduler.DefaultTimeout)
	add(err)
	if c.Scheduler.HistorySize < 0 {
		add(errors.New("scheduler.history_size: must be >= 0"))
	}

	return errors.Join(errs...)
}

// ReminderSchedule returns the configured scan schedule or the default.
func (c *Config) ReminderSchedule() string {
	if s := strings.TrimSpace(c.Reminders.Schedule); s != "" {
		return s
	}
	return DefaultReminderSchedule
}

func (c *Config) HTTPAddr() string {
	if a := strings.TrimSpace(c.HTTP.Addr); a != "" {
		return a
	}
	return DefaultHTTPAddr
}
