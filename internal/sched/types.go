package sched

import (
	"time"
)

// JobSpec is the immutable per-tick description of one schedulable command.
//
// Specs are rebuilt from configuration at the start of every tick and never
// mutated afterwards, so a tick always sees one consistent view even if the
// config file changes mid-run.
type JobSpec struct {
	Name    string
	Enabled bool
	Cadence Cadence
	Window  Window
	Command []string
	Timeout time.Duration

	// OutputLog is an optional per-job file that child output is appended to.
	OutputLog string

	// Err carries a config validation failure. The driver records it as an
	// error outcome for this job without touching locks or other jobs.
	Err error
}

// Window is the [Start,End) second range within the triggering minute during
// which a job may start. Overlap across distinct jobs is permitted and
// intentional (staggering).
type Window struct {
	Start int
	End   int
}

// Contains reports whether second sec falls inside the window.
func (w Window) Contains(sec int) bool { return sec >= w.Start && sec < w.End }

// Outcome classifies one run attempt.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeFailed          Outcome = "failed"
	OutcomeTimedOut        Outcome = "timed_out"
	OutcomeSkippedDisabled Outcome = "skipped_disabled"
	OutcomeSkippedWindow   Outcome = "skipped_out_of_window"
	OutcomeSkippedLocked   Outcome = "skipped_locked"
	// OutcomeError covers per-job faults that are neither a child exit status
	// nor an expected skip: config validation failures, lock backing-store
	// errors, panics caught at the job boundary.
	OutcomeError Outcome = "error"
)

// Attempted reports whether the child process was actually launched
// (or launch was attempted) for this outcome.
func (o Outcome) Attempted() bool {
	return o == OutcomeSuccess || o == OutcomeFailed || o == OutcomeTimedOut
}

// Failure reports whether this outcome should alert an operator.
func (o Outcome) Failure() bool {
	return o == OutcomeFailed || o == OutcomeTimedOut || o == OutcomeError
}

// RunResult is the immutable record of one attempted or skipped job.
type RunResult struct {
	Job      string
	Started  time.Time
	Duration time.Duration
	Outcome  Outcome

	// ExitCode is meaningful only when Outcome is success or failed.
	ExitCode int

	Err string

	// OutputTail holds the last captured bytes of child output.
	OutputTail string
}

// Snapshot is the resolved, validated view of the configuration for one tick.
type Snapshot struct {
	Enabled        bool
	LockDir        string
	StaleLockAfter time.Duration
	KillGrace      time.Duration
	Location       *time.Location
	Jobs           []JobSpec
}

// Report aggregates one tick.
//
// Per-job failures never escalate to a report-level failure; only a config
// load error (which happens before Tick) aborts a tick.
type Report struct {
	At      time.Time
	Skipped bool // scheduler globally disabled
	Results []RunResult
}

// Counts returns per-outcome totals, for the tick summary log line.
func (r Report) Counts() map[Outcome]int {
	c := make(map[Outcome]int, 4)
	for _, res := range r.Results {
		c[res.Outcome]++
	}
	return c
}
