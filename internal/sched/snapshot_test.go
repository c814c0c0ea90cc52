package sched

import (
	"testing"
	"time"

	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/config"
)

func TestBuildSnapshotDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{Enabled: true},
		Jobs: []config.JobConfig{
			{Name: "fetch_fixtures", Enabled: true, Cadence: "minute", Command: []string{"/bin/true"}},
		},
	}

	snap, err := BuildSnapshot(cfg)
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}
	if !snap.Enabled {
		t.Fatal("expected enabled snapshot")
	}
	if snap.LockDir != defaultLockDir {
		t.Fatalf("LockDir = %q, want %q", snap.LockDir, defaultLockDir)
	}
	if snap.StaleLockAfter != defaultStaleLockAfter {
		t.Fatalf("StaleLockAfter = %v, want %v", snap.StaleLockAfter, defaultStaleLockAfter)
	}
	if len(snap.Jobs) != 1 {
		t.Fatalf("got %d jobs", len(snap.Jobs))
	}
	job := snap.Jobs[0]
	if job.Err != nil {
		t.Fatalf("unexpected job error: %v", job.Err)
	}
	if job.Timeout != defaultTimeout {
		t.Fatalf("Timeout = %v, want default %v", job.Timeout, defaultTimeout)
	}
	if job.Window != (Window{Start: 0, End: 60}) {
		t.Fatalf("Window = %+v, want full minute", job.Window)
	}
}

func TestBuildSnapshotPerJobErrors(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{Enabled: true},
		Jobs: []config.JobConfig{
			{Name: "good", Enabled: true, Cadence: "minute", Command: []string{"/bin/true"}},
			{Name: "no_command", Enabled: true, Cadence: "minute"},
			{Name: "bad_window", Enabled: true, Cadence: "minute", Command: []string{"x"}, Window: &config.WindowConfig{Start: 20, End: 10}},
			{Name: "good", Enabled: true, Cadence: "minute", Command: []string{"x"}},
			{Name: "bad_cadence", Enabled: true, Cadence: "whenever", Command: []string{"x"}},
		},
	}

	snap, err := BuildSnapshot(cfg)
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}
	if len(snap.Jobs) != 5 {
		t.Fatalf("got %d jobs, want all 5 retained", len(snap.Jobs))
	}
	if snap.Jobs[0].Err != nil {
		t.Fatalf("healthy job got error: %v", snap.Jobs[0].Err)
	}
	for _, i := range []int{1, 2, 3, 4} {
		if snap.Jobs[i].Err == nil {
			t.Fatalf("jobs[%d] (%s): expected validation error", i, snap.Jobs[i].Name)
		}
	}
}

func TestBuildSnapshotBadGlobals(t *testing.T) {
	t.Parallel()
	if _, err := BuildSnapshot(&config.Config{
		Scheduler: config.SchedulerConfig{Enabled: true, Timezone: "Nowhere/Nope"},
	}); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
	if _, err := BuildSnapshot(&config.Config{
		Scheduler: config.SchedulerConfig{Enabled: true, StaleLockAfter: "soon"},
	}); err == nil {
		t.Fatal("expected error for bad stale_lock_after")
	}
}

func TestBuildSnapshotTimezone(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{Enabled: true, Timezone: "UTC"},
	}
	snap, err := BuildSnapshot(cfg)
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}
	if snap.Location != time.UTC {
		t.Fatalf("Location = %v, want UTC", snap.Location)
	}
}
