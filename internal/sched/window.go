package sched

import "time"

// InWindow reports whether now falls inside the job's execution window.
//
// Pure function of (job, now): no side effects, deterministic for repeated
// calls within the same second. The driver relies on the lock manager, not on
// this function, to avoid double-firing within one matching window.
func InWindow(job JobSpec, now time.Time) bool {
	if !job.Window.Contains(now.Second()) {
		return false
	}

	switch job.Cadence.Kind {
	case CadenceEveryMinute:
		return true
	case CadenceEveryN:
		n := job.Cadence.EveryN
		if n <= 0 {
			return false
		}
		return now.Minute()%n == 0
	case CadenceHourly:
		return now.Minute() == 0
	case CadenceDaily:
		return now.Hour() == job.Cadence.Hour && now.Minute() == job.Cadence.Minute
	case CadenceCron:
		if job.Cadence.schedule == nil {
			return false
		}
		// The expression matches this minute iff its next activation strictly
		// after one second before the minute boundary is the boundary itself.
		minute := now.Truncate(time.Minute)
		return job.Cadence.schedule.Next(minute.Add(-time.Second)).Equal(minute)
	default:
		return false
	}
}
