package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/lockfile"
	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/sched"
	logx "github.com/spacedlevo/prediction-league-scripts-sub001/pkg/logx"
)

const outputTailBytes = 4 * 1024

// Runner executes one job's command under an already-held lock.
type Runner struct {
	locks     *lockfile.Manager
	log       logx.Logger
	killGrace time.Duration
}

func New(locks *lockfile.Manager, log logx.Logger, killGrace time.Duration) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	if killGrace <= 0 {
		killGrace = 5 * time.Second
	}
	return &Runner{locks: locks, log: log, killGrace: killGrace}
}

// Run starts job.Command as a child process and waits up to job.Timeout.
//
// Precondition: the caller holds lock for job.Name. The lock is released on
// every exit path, including launch failures and panics further up the
// stack, via the deferred release below.
//
// On timeout the child's process group gets SIGTERM, then SIGKILL after the
// kill-grace period. Timed-out runs are recorded distinctly from ordinary
// failures so operators can tell hangs from crashes.
func (r *Runner) Run(ctx context.Context, job sched.JobSpec, lock *lockfile.Record) sched.RunResult {
	defer func() {
		if err := r.locks.Release(job.Name, lock.PID); err != nil {
			r.log.Error("lock release failed", logx.String("job", job.Name), logx.Err(err))
		}
	}()

	res := sched.RunResult{Job: job.Name}

	runCtx := ctx
	var cancel context.CancelFunc
	if job.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	tail := newTailBuffer(outputTailBytes)
	var out io.Writer = tail
	var logFile *os.File
	if job.OutputLog != "" {
		f, err := os.OpenFile(job.OutputLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			r.log.Warn("job output log unavailable", logx.String("job", job.Name), logx.Err(err))
		} else {
			logFile = f
			out = io.MultiWriter(tail, f)
			fmt.Fprintf(f, "---- %s run %s ----\n", job.Name, time.Now().Format(time.RFC3339))
		}
	}
	if logFile != nil {
		defer logFile.Close()
	}

	cmd := exec.CommandContext(runCtx, job.Command[0], job.Command[1:]...)
	cmd.Stdout = out
	cmd.Stderr = out
	// Own process group, so a timeout can signal the whole tree.
	setProcAttr(cmd)
	cmd.Cancel = func() error { return terminate(cmd) }
	cmd.WaitDelay = r.killGrace

	res.Started = time.Now()
	if err := cmd.Start(); err != nil {
		res.Duration = time.Since(res.Started)
		res.Outcome = sched.OutcomeFailed
		res.Err = fmt.Sprintf("launch: %v", err)
		r.log.Warn("job launch failed", logx.String("job", job.Name), logx.Err(err))
		return res
	}

	err := cmd.Wait()
	res.Duration = time.Since(res.Started)
	res.OutputTail = tail.String()

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		res.Outcome = sched.OutcomeTimedOut
		res.Err = fmt.Sprintf("timed out after %s", job.Timeout)
		r.log.Warn("job timed out",
			logx.String("job", job.Name),
			logx.Duration("timeout", job.Timeout),
			logx.Duration("dur", res.Duration))
	case err == nil:
		res.Outcome = sched.OutcomeSuccess
		r.log.Info("job completed",
			logx.String("job", job.Name),
			logx.Duration("dur", res.Duration))
	default:
		res.Outcome = sched.OutcomeFailed
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			res.Err = fmt.Sprintf("exit status %d", res.ExitCode)
		} else {
			res.Err = err.Error()
		}
		r.log.Warn("job failed",
			logx.String("job", job.Name),
			logx.Int("exit_code", res.ExitCode),
			logx.Duration("dur", res.Duration),
			logx.Err(err))
	}
	return res
}
