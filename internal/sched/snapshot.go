package sched

import (
	"fmt"
	"time"

	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/config"
)

const (
	defaultLockDir        = "./locks"
	defaultStaleLockAfter = 15 * time.Minute
	defaultTimeout        = 5 * time.Minute
	defaultKillGrace      = 5 * time.Second
)

// BuildSnapshot resolves the raw config into the immutable per-tick view.
//
// Global settings that fail to resolve (bad durations, unknown timezone) are
// a driver-level error: without them no job can be evaluated. Per-job
// problems are captured on the JobSpec's Err field instead, so one bad job
// never aborts the tick.
func BuildSnapshot(cfg *config.Config) (Snapshot, error) {
	if cfg == nil {
		return Snapshot{}, fmt.Errorf("nil config")
	}

	sc := cfg.Scheduler

	stale, err := config.ParseDurationOrDefault("scheduler.stale_lock_after", sc.StaleLockAfter, defaultStaleLockAfter)
	if err != nil {
		return Snapshot{}, err
	}
	defTimeout, err := config.ParseDurationOrDefault("scheduler.default_timeout", sc.DefaultTimeout, defaultTimeout)
	if err != nil {
		return Snapshot{}, err
	}
	killGrace, err := config.ParseDurationOrDefault("scheduler.kill_grace", sc.KillGrace, defaultKillGrace)
	if err != nil {
		return Snapshot{}, err
	}

	loc := time.Local
	if sc.Timezone != "" {
		loc, err = time.LoadLocation(sc.Timezone)
		if err != nil {
			return Snapshot{}, fmt.Errorf("scheduler.timezone: %w", err)
		}
	}

	lockDir := sc.LockDir
	if lockDir == "" {
		lockDir = defaultLockDir
	}

	snap := Snapshot{
		Enabled:        sc.Enabled,
		LockDir:        lockDir,
		StaleLockAfter: stale,
		KillGrace:      killGrace,
		Location:       loc,
		Jobs:           make([]JobSpec, 0, len(cfg.Jobs)),
	}

	seen := make(map[string]bool, len(cfg.Jobs))
	for i, jc := range cfg.Jobs {
		spec := buildJobSpec(i, jc, defTimeout, seen)
		snap.Jobs = append(snap.Jobs, spec)
	}
	return snap, nil
}

func buildJobSpec(idx int, jc config.JobConfig, defTimeout time.Duration, seen map[string]bool) JobSpec {
	spec := JobSpec{
		Name:      jc.Name,
		Enabled:   jc.Enabled,
		Command:   jc.Command,
		OutputLog: jc.OutputLog,
		Window:    Window{Start: 0, End: 60},
	}

	fail := func(err error) JobSpec {
		spec.Err = err
		return spec
	}

	if jc.Name == "" {
		spec.Name = fmt.Sprintf("job[%d]", idx)
		return fail(fmt.Errorf("jobs[%d]: name required", idx))
	}
	if seen[jc.Name] {
		return fail(fmt.Errorf("jobs[%d]: duplicate name %q", idx, jc.Name))
	}
	seen[jc.Name] = true

	cad, err := ParseCadence(jc.Cadence)
	if err != nil {
		return fail(fmt.Errorf("job %q: %w", jc.Name, err))
	}
	spec.Cadence = cad

	if jc.Window != nil {
		w := Window{Start: jc.Window.Start, End: jc.Window.End}
		if w.Start < 0 || w.End > 60 || w.Start >= w.End {
			return fail(fmt.Errorf("job %q: invalid window [%d,%d) (want 0 <= start < end <= 60)", jc.Name, w.Start, w.End))
		}
		spec.Window = w
	}

	if len(jc.Command) == 0 || jc.Command[0] == "" {
		return fail(fmt.Errorf("job %q: command required", jc.Name))
	}

	timeout, err := config.ParseDurationField(fmt.Sprintf("job %q timeout", jc.Name), jc.Timeout)
	if err != nil {
		return fail(err)
	}
	if timeout <= 0 {
		timeout = defTimeout
	}
	spec.Timeout = timeout

	return spec
}
