package config

// Config is the full schedulerd configuration.
//
// The file may be JSON or YAML; YAML is coerced to JSON and both go through
// the same strict decoder, so unknown keys are rejected early in either format.
type Config struct {
	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`
	History   *HistoryConfig  `json:"history,omitempty"`
	Notify    *NotifyConfig   `json:"notify,omitempty"`
	Jobs      []JobConfig     `json:"jobs"`
}

// SchedulerConfig holds the global knobs shared by every job.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "15m").
//
// Defaults (when fields are omitted/zero):
//   - lock_dir: "./locks"
//   - stale_lock_after: "15m"
//   - default_timeout: "5m"
//   - kill_grace: "5s"
type SchedulerConfig struct {
	Enabled bool   `json:"enabled"`
	LockDir string `json:"lock_dir,omitempty"`

	// StaleLockAfter is how old a lock record must be before a later tick may
	// treat it as abandoned and try to reclaim it.
	StaleLockAfter string `json:"stale_lock_after,omitempty"`

	// DefaultTimeout applies to jobs that don't set their own timeout.
	// Use "0s" to disable the global default.
	DefaultTimeout string `json:"default_timeout,omitempty"`

	// KillGrace is how long a timed-out job gets between SIGTERM and SIGKILL.
	KillGrace string `json:"kill_grace,omitempty"`

	// Trigger timezone (IANA TZ, e.g. "Europe/London").
	Timezone string `json:"timezone,omitempty"`
}

// JobConfig describes one schedulable external command.
//
// Cadence forms:
//   - "minute" / "every-minute"
//   - "every:N" or "every:30m" (whole minutes)
//   - "hourly" or "hourly:SS" (second offset reserved)
//   - "daily:HH:MM"
//   - "cron:EXPR", or a bare 5-field expression / "@hourly" style spec
//
// Window is the [start,end) second range within the triggering minute during
// which the job may start; it defaults to the whole minute. Windows are used
// to stagger jobs that would otherwise contend for the same resource, so
// overlap across jobs is fine.
type JobConfig struct {
	Name    string        `json:"name"`
	Enabled bool          `json:"enabled"`
	Cadence string        `json:"cadence"`
	Window  *WindowConfig `json:"window,omitempty"`
	Command []string      `json:"command"`

	// Timeout is a Go duration string. Empty means scheduler.default_timeout.
	Timeout string `json:"timeout,omitempty"`

	// OutputLog is an optional per-job file that captured child output is
	// appended to.
	OutputLog string `json:"output_log,omitempty"`
}

type WindowConfig struct {
	Start int `json:"start"`
	End   int `json:"end"`
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

// HistoryConfig controls the run-result store.
//
// Example:
//
//	"history": { "driver": "sqlite", "path": "./schedulerd.db" }
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotifyConfig controls Telegram failure alerts.
//
// If the whole section is omitted, alerting is disabled.
type NotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}
