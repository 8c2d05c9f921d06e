package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleJSON = `{
  "http": {"enabled": true, "addr": "127.0.0.1:0", "rate_per_sec": 5, "burst": 10},
  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
  "storage": {"driver": "sqlite", "path": "./data/todos.db", "busy_timeout": "5s"},
  "reminders": {"enabled": true, "schedule": "30s", "timeout": "10s"},
  "notifier": {"enabled": true, "workers": 2, "dedup_window": "10m"}
}`

const sampleYAML = `
http:
  enabled: true
  addr: "127.0.0.1:0"
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
storage:
  driver: memory
reminders:
  enabled: true
  schedule: "*/1 * * * *"
scheduler:
  timezone: UTC
`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, sampleJSON)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.HTTP.RatePerSec != 5 || cfg.ReminderSchedule() != "30s" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if m.Get() != cfg {
		t.Fatal("Get does not return the committed config")
	}
	if got := Duration(cfg.Reminders.Timeout, time.Minute); got != 10*time.Second {
		t.Fatalf("reminders timeout = %v", got)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, sampleYAML)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ReminderSchedule() != "*/1 * * * *" || cfg.Scheduler.Timezone != "UTC" || !cfg.Logging.Console {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{name: "unknown field", file: "c.json", body: `{"storage":{"driver":"memory"},"telegram":{}}`, want: "unknown field"},
		{name: "unknown yaml field", file: "c.yml", body: "storage:\n  driver: memory\n  dsn: x\n", want: "unknown field"},
		{name: "trailing data", file: "c.json", body: `{} {}`, want: "trailing data"},
		{name: "bad driver", file: "c.json", body: `{"storage":{"driver":"postgres"}}`, want: "storage.driver"},
		{name: "sqlite without path", file: "c.json", body: `{"storage":{"driver":"sqlite"}}`, want: "storage.path"},
		{name: "bad schedule", file: "c.json", body: `{"reminders":{"enabled":true,"schedule":"soon"}}`, want: "reminders.schedule"},
		{name: "bad duration", file: "c.json", body: `{"reminders":{"timeout":"ten"}}`, want: "reminders.timeout"},
		{name: "bad level", file: "c.json", body: `{"logging":{"level":"loud"}}`, want: "logging.level"},
		{name: "bad timezone", file: "c.json", body: `{"scheduler":{"timezone":"Mars/Olympus"}}`, want: "scheduler.timezone"},
		{name: "bad dedup window", file: "c.json", body: `{"notifier":{"dedup_window":"-1m"}}`, want: "notifier.dedup_window"},
		{name: "negative workers", file: "c.json", body: `{"notifier":{"workers":-1}}`, want: "notifier"},
		{name: "bad addr", file: "c.json", body: `{"http":{"enabled":true,"addr":"nope"}}`, want: "http.addr"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tt.file, []byte(tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestDecodeEmptyYAMLUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("empty.yaml", nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.HTTPAddr() != DefaultHTTPAddr || cfg.ReminderSchedule() != DefaultReminderSchedule {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a, err := Decode("a.json", []byte(sampleJSON))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	b := *a
	b.Reminders.Schedule = "1m"
	b.Logging.Level = "warn"

	ch := SummarizeConfigChange(a, &b)
	if !ch.Has("reminders") || !ch.Has("logging") || ch.Has("storage") || ch.Has("http") || ch.Has("notifier") {
		t.Fatalf("sections = %v", ch.Sections)
	}
	if !SummarizeConfigChange(a, a).Empty() {
		t.Fatal("identical configs reported a change")
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, sampleJSON)

	m := NewManager(path)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	updates := m.Subscribe(1)
	defer m.Unsubscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	// An invalid edit must not be published.
	writeFile(t, path, `{"storage":{"driver":"postgres"}}`)
	time.Sleep(100 * time.Millisecond)

	writeFile(t, path, strings.Replace(sampleJSON, `"schedule": "30s"`, `"schedule": "45s"`, 1))

	select {
	case cfg := <-updates:
		if cfg.ReminderSchedule() != "45s" {
			t.Fatalf("published schedule = %s", cfg.ReminderSchedule())
		}
		if m.Get().ReminderSchedule() != "45s" {
			t.Fatal("published config was not committed")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no config published")
	}
}

func TestValidatorRejectsReload(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, sampleJSON)

	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(context.Context, *Config) error { return os.ErrPermission })
	updates := m.Subscribe(1)

	writeFile(t, path, strings.Replace(sampleJSON, `"30s"`, `"45s"`, 1))
	m.reload(context.Background())

	select {
	case <-updates:
		t.Fatal("rejected config was published")
	default:
	}
	if m.Get().ReminderSchedule() != "30s" {
		t.Fatal("rejected config was committed")
	}
}
