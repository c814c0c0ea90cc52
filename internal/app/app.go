package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/config"
	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/history"
	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/lockfile"
	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/notify"
	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/runner"
	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/runtime/supervisor"
	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/sched"
	logx "github.com/spacedlevo/prediction-league-scripts-sub001/pkg/logx"
)

// App wires configuration, logging, the scheduler core, and the optional
// history/notify services.
type App struct {
	cfgMgr   *config.Manager
	logSvc   *logx.Service
	log      logx.Logger
	store    history.Store
	notifier *notify.Service
	pid      int
}

// New loads the config and builds all services. A config load failure here is
// the one fatal condition: without configuration no job can be evaluated.
func New(cfgPath string, pid int) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log)
	mgr.SetValidator(func(ctx context.Context, c *config.Config) error {
		_, err := sched.BuildSnapshot(c)
		return err
	})

	a := &App{cfgMgr: mgr, logSvc: logSvc, log: log, pid: pid}

	if cfg.History != nil {
		busy, err := config.ParseDurationField("history.busy_timeout", cfg.History.BusyTimeout)
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		st, err := history.Open(history.Config{
			Driver:      cfg.History.Driver,
			Path:        cfg.History.Path,
			BusyTimeout: busy,
		}, log)
		if err != nil {
			logSvc.Close()
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.store = st
	}

	if cfg.Notify != nil {
		n, err := notify.New(notify.Config{
			Enabled:    cfg.Notify.Enabled,
			Token:      cfg.Notify.Token,
			ChatID:     cfg.Notify.ChatID,
			ThreadID:   cfg.Notify.ThreadID,
			QueueSize:  cfg.Notify.QueueSize,
			RatePerSec: cfg.Notify.RatePerSec,
		}, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("notify: %w", err)
		}
		a.notifier = n
	}

	return a, nil
}

func (a *App) Log() logx.Logger     { return a.log }
func (a *App) Store() history.Store { return a.store }

// TickOnce resolves the current config into a snapshot and runs one tick.
// Only a snapshot-level resolution failure is returned as an error; per-job
// outcomes live in the report.
func (a *App) TickOnce(ctx context.Context, now time.Time) (sched.Report, error) {
	snap, err := sched.BuildSnapshot(a.cfgMgr.Get())
	if err != nil {
		return sched.Report{}, err
	}

	locks := lockfile.NewManager(snap.LockDir, a.log)
	run := runner.New(locks, a.log, snap.KillGrace)
	drv := sched.NewDriver(locks, run.Run, a.log, a.pid)

	rep := drv.Tick(ctx, snap, now)
	a.persist(ctx, rep)
	a.notifier.Observe(rep)
	return rep, nil
}

// FlushAlerts synchronously delivers queued alerts; one-shot mode calls this
// before the process exits.
func (a *App) FlushAlerts(ctx context.Context) { a.notifier.Flush(ctx) }

// persist appends run results to the history store. Out-of-window and
// disabled skips recur every minute and carry no information, so only
// attempted runs, lock skips, and errors are stored; the structured log
// still carries the full tick summary.
func (a *App) persist(ctx context.Context, rep sched.Report) {
	if a.store == nil {
		return
	}
	for _, r := range rep.Results {
		if !r.Outcome.Attempted() && r.Outcome != sched.OutcomeSkippedLocked && r.Outcome != sched.OutcomeError {
			continue
		}
		if err := a.store.AppendRun(ctx, r); err != nil {
			a.log.Warn("history append failed", logx.String("job", r.Job), logx.Err(err))
		}
	}
}

// RunDaemon runs the minute ticker, config watcher, and alert worker until
// ctx is canceled.
func (a *App) RunDaemon(ctx context.Context) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log))

	sup.GoRestart("config.watch", a.cfgMgr.Watch)

	sub := a.cfgMgr.Subscribe(1)
	sup.Go0("config.apply", func(ctx context.Context) {
		defer a.cfgMgr.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg := <-sub:
				if cfg == nil {
					continue
				}
				a.logSvc.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
			}
		}
	})

	if a.notifier != nil {
		sup.Go0("notify.worker", a.notifier.Worker)
	}

	sup.Go0("ticker", a.tickLoop)

	// Under systemd these are no-ops when NOTIFY_SOCKET is unset.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		sup.Go0("watchdog", func(ctx context.Context) {
			t := time.NewTicker(interval / 2)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		})
	}

	a.log.Info("schedulerd running", logx.Int("pid", a.pid))
	err := sup.Wait(context.Background())
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	return err
}

// tickLoop fires one tick per minute, aligned to the minute boundary.
// A slow tick simply skips past boundaries; overlap with a still-running
// previous tick is handled by the lock manager, not avoided here.
func (a *App) tickLoop(ctx context.Context) {
	for {
		now := time.Now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		t := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case fired := <-t.C:
			if _, err := a.TickOnce(ctx, fired); err != nil {
				a.log.Error("tick aborted", logx.Err(err))
			}
		}
	}
}

func (a *App) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logSvc != nil {
		_ = a.logSvc.Close()
	}
}
