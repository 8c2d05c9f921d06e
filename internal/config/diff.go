package config

import (
	"strings"

	logx "todoreminder/pkg/logx"
)

// Change lists the sections that differ between two configs.
type Change struct {
	Sections []string
	Fields   []logx.Field
}

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// SummarizeConfigChange compares oldCfg and newCfg section by section and
// returns structured fields fit for a single reload log line.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Fields = append(ch.Fields, fields...)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		mark("http",
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", newCfg.HTTPAddr()),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !strings.EqualFold(strings.TrimSpace(oldCfg.Storage.Driver), strings.TrimSpace(newCfg.Storage.Driver)) ||
		strings.TrimSpace(oldCfg.Storage.Path) != strings.TrimSpace(newCfg.Storage.Path) ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) {
		mark("storage", logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Reminders != newCfg.Reminders {
		mark("reminders",
			logx.Bool("reminders.enabled", newCfg.Reminders.Enabled),
			logx.String("reminders.schedule", newCfg.ReminderSchedule()),
		)
	}
	if oldCfg.Notifier != newCfg.Notifier {
		mark("notifier",
			logx.Bool("notifier.enabled", newCfg.Notifier.Enabled),
			logx.Int("notifier.workers", newCfg.Notifier.Workers),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		mark("scheduler", logx.String("scheduler.timezone", newCfg.Scheduler.Timezone))
	}
	return ch
}
