package sched

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/lockfile"
	logx "github.com/spacedlevo/prediction-league-scripts-sub001/pkg/logx"
)

// RunFunc executes one job under an already-held lock and must release the
// lock on every exit path. Production wiring uses runner.Runner.Run.
type RunFunc func(ctx context.Context, job JobSpec, lock *lockfile.Record) RunResult

// Driver evaluates every configured job once per tick.
//
// Failure isolation is the core safety property: a fault while evaluating one
// job (bad config, lock-store error, a panic anywhere in its path) is caught
// and recorded as that job's result, and the loop proceeds to the rest.
type Driver struct {
	locks *lockfile.Manager
	run   RunFunc
	log   logx.Logger
	pid   int
}

func NewDriver(locks *lockfile.Manager, run RunFunc, log logx.Logger, pid int) *Driver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Driver{locks: locks, run: run, log: log, pid: pid}
}

// Tick evaluates all jobs in snap against now and returns one result per job,
// in configuration order.
//
// Ticks tolerate being fired more or less often than once a minute, and
// tolerate a slow previous tick still running: correctness under overlap
// comes entirely from the lock manager's atomic acquire, never from assuming
// non-overlap. Eligible jobs execute concurrently; the lock guarantees two
// attempts of the same job never do.
func (d *Driver) Tick(ctx context.Context, snap Snapshot, now time.Time) Report {
	rep := Report{At: now}
	if !snap.Enabled {
		rep.Skipped = true
		d.log.Debug("scheduler disabled; tick skipped")
		return rep
	}
	if snap.Location != nil {
		now = now.In(snap.Location)
		rep.At = now
	}

	rep.Results = make([]RunResult, len(snap.Jobs))
	var wg sync.WaitGroup
	for i, job := range snap.Jobs {
		res, lock := d.evaluate(job, now, snap.StaleLockAfter)
		if lock == nil {
			rep.Results[i] = res
			continue
		}
		wg.Add(1)
		go func(i int, job JobSpec, lock *lockfile.Record) {
			defer wg.Done()
			rep.Results[i] = d.execute(ctx, job, lock)
		}(i, job, lock)
	}
	wg.Wait()

	d.logSummary(rep)
	return rep
}

// evaluate walks the per-job state machine up to (but not including) process
// launch. A non-nil lock means the job should run.
func (d *Driver) evaluate(job JobSpec, now time.Time, staleAfter time.Duration) (res RunResult, lock *lockfile.Record) {
	res = RunResult{Job: job.Name, Started: now}

	defer func() {
		if r := recover(); r != nil {
			lock = nil
			res.Outcome = OutcomeError
			res.Err = fmt.Sprintf("panic: %v", r)
			d.log.Error("job evaluation panicked",
				logx.String("job", job.Name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	if job.Err != nil {
		res.Outcome = OutcomeError
		res.Err = job.Err.Error()
		d.log.Warn("job config invalid", logx.String("job", job.Name), logx.Err(job.Err))
		return res, nil
	}
	if !job.Enabled {
		res.Outcome = OutcomeSkippedDisabled
		return res, nil
	}
	if !InWindow(job, now) {
		res.Outcome = OutcomeSkippedWindow
		return res, nil
	}

	lk, err := d.locks.TryAcquire(job.Name, d.pid, now, staleAfter)
	switch {
	case errors.Is(err, lockfile.ErrHeld):
		res.Outcome = OutcomeSkippedLocked
		d.log.Debug("job locked; skipped", logx.String("job", job.Name))
		return res, nil
	case err != nil:
		res.Outcome = OutcomeError
		res.Err = err.Error()
		d.log.Error("lock acquire failed", logx.String("job", job.Name), logx.Err(err))
		return res, nil
	}
	return res, lk
}

// execute delegates to the run function behind a panic boundary. The runner
// releases the lock itself; on a panic before it gets the chance, the
// deferred release here is a no-op-safe backstop.
func (d *Driver) execute(ctx context.Context, job JobSpec, lock *lockfile.Record) (res RunResult) {
	defer func() {
		if r := recover(); r != nil {
			_ = d.locks.Release(job.Name, lock.PID)
			res = RunResult{
				Job:     job.Name,
				Started: time.Now(),
				Outcome: OutcomeError,
				Err:     fmt.Sprintf("panic: %v", r),
			}
			d.log.Error("job run panicked",
				logx.String("job", job.Name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	return d.run(ctx, job, lock)
}

func (d *Driver) logSummary(rep Report) {
	counts := rep.Counts()
	d.log.Info("tick complete",
		logx.Time("at", rep.At),
		logx.Int("jobs", len(rep.Results)),
		logx.Int("ran", counts[OutcomeSuccess]+counts[OutcomeFailed]+counts[OutcomeTimedOut]),
		logx.Int("failed", counts[OutcomeFailed]+counts[OutcomeTimedOut]),
		logx.Int("errors", counts[OutcomeError]),
		logx.Int("skipped", counts[OutcomeSkippedDisabled]+counts[OutcomeSkippedWindow]+counts[OutcomeSkippedLocked]))
}
