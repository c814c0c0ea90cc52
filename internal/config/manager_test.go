package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const yamlConfig = `
scheduler:
  enabled: true
  lock_dir: /tmp/sched-locks
  stale_lock_after: 20m
  default_timeout: 2m
  timezone: Europe/London
logging:
  level: debug
  console: true
jobs:
  - name: fetch_fixtures
    enabled: true
    cadence: "every:30"
    window:
      start: 0
      end: 15
    command: ["/usr/bin/fetch-fixtures", "--season", "2026"]
  - name: scoring
    enabled: false
    cadence: "daily:06:45"
    command: ["/usr/bin/score"]
    timeout: 10m
    output_log: /var/log/scoring.log
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", yamlConfig))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.Scheduler.Enabled {
		t.Fatal("scheduler.enabled not parsed")
	}
	if cfg.Scheduler.LockDir != "/tmp/sched-locks" {
		t.Fatalf("LockDir = %q", cfg.Scheduler.LockDir)
	}
	if cfg.Scheduler.Timezone != "Europe/London" {
		t.Fatalf("Timezone = %q", cfg.Scheduler.Timezone)
	}
	if len(cfg.Jobs) != 2 {
		t.Fatalf("got %d jobs", len(cfg.Jobs))
	}
	j := cfg.Jobs[0]
	if j.Name != "fetch_fixtures" || j.Cadence != "every:30" {
		t.Fatalf("job[0] = %+v", j)
	}
	if j.Window == nil || j.Window.Start != 0 || j.Window.End != 15 {
		t.Fatalf("job[0].Window = %+v", j.Window)
	}
	if len(j.Command) != 3 || j.Command[0] != "/usr/bin/fetch-fixtures" {
		t.Fatalf("job[0].Command = %v", j.Command)
	}
	if cfg.Jobs[1].Enabled {
		t.Fatal("job[1] should be disabled")
	}
	if cfg.Jobs[1].OutputLog != "/var/log/scoring.log" {
		t.Fatalf("job[1].OutputLog = %q", cfg.Jobs[1].OutputLog)
	}

	// Load must also commit, making the config visible through Get.
	if m.Get() != cfg {
		t.Fatal("Get() did not return committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{
		"scheduler": {"enabled": true},
		"logging": {"level": "info", "console": false},
		"jobs": [{"name": "a", "enabled": true, "cadence": "minute", "command": ["/bin/true"]}]
	}`))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Jobs) != 1 || cfg.Jobs[0].Name != "a" {
		t.Fatalf("jobs = %+v", cfg.Jobs)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", `
scheduler:
  enabled: true
  retry_forever: true
jobs: []
`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	} else if !strings.Contains(err.Error(), "retry_forever") {
		t.Fatalf("error should name the unknown field: %v", err)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{"scheduler":{"enabled":true},"jobs":[]}{"extra":1}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSubscribePublishDropsStale(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{}
	second := &Config{Scheduler: SchedulerConfig{Enabled: true}}
	m.publish(first)
	m.publish(second)

	// With a full buffer the stale item is replaced by the newest.
	got := <-ch
	if got != second {
		t.Fatal("subscriber should observe the latest config")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after Unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	m.publish(&Config{})
}
