package app

import (
	"strings"
	"time"

	"todoreminder/internal/config"
	"todoreminder/internal/notifier"
	"todoreminder/internal/storage"
	"todoreminder/internal/task/scheduler"
	"todoreminder/internal/transport/httpapi"
	logx "todoreminder/pkg/logx"
)

// reminderTask is the scheduler name of the periodic reminder scan.
const reminderTask = "reminder-processing"

// The mappers below run on configs that already passed Validate, so
// malformed durations cannot reach them.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: config.Duration(cfg.Storage.BusyTimeout, time.Second),
	}
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	return httpapi.Config{
		Enabled:         cfg.HTTP.Enabled,
		Addr:            cfg.HTTPAddr(),
		ReadTimeout:     config.Duration(cfg.HTTP.ReadTimeout, 10*time.Second),
		WriteTimeout:    config.Duration(cfg.HTTP.WriteTimeout, 10*time.Second),
		IdleTimeout:     config.Duration(cfg.HTTP.IdleTimeout, time.Minute),
		ShutdownTimeout: config.Duration(cfg.HTTP.ShutdownTimeout, 3*time.Second),
		RatePerSec:      cfg.HTTP.RatePerSec,
		Burst:           cfg.HTTP.Burst,
		Metrics:         cfg.HTTP.Metrics,
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	n := cfg.Notifier
	return notifier.Config{
		Enabled:     n.Enabled,
		Workers:     n.Workers,
		QueueSize:   n.QueueSize,
		RatePerSec:  n.RatePerSec,
		RetryMax:    n.RetryMax,
		RetryBase:   config.Duration(n.RetryBase, 0),
		DedupWindow: config.Duration(n.DedupWindow, time.Hour),
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	history := cfg.Scheduler.HistorySize
	if history == 0 {
		history = 200
	}
	return scheduler.Config{
		Timezone:       strings.TrimSpace(cfg.Scheduler.Timezone),
		DefaultTimeout: config.Duration(cfg.Scheduler.DefaultTimeout, 0),
		HistorySize:    history,
	}
}

func reminderOptions(cfg *config.Config) scheduler.TaskOptions {
	return scheduler.TaskOptions{
		Timeout:    config.Duration(cfg.Reminders.Timeout, 0),
		RunOnStart: cfg.Reminders.RunOnStart,
	}
}
