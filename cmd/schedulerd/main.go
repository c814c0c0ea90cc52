package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/app"
)

func main() {
	var (
		cfgPath   string
		runDaemon bool
		lastJob   string
		lastN     int
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.BoolVar(&runDaemon, "daemon", false, "run the internal minute ticker instead of a single tick")
	flag.StringVar(&lastJob, "last", "", "print recent runs for the named job and exit")
	flag.IntVar(&lastN, "n", 10, "number of runs to print with -last")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath, os.Getpid())
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	defer a.Close()

	if lastJob != "" {
		if err := printRuns(ctx, a, lastJob, lastN); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
		return
	}

	if runDaemon {
		if err := a.RunDaemon(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
		return
	}

	// One-shot tick: the cron-invoked mode. Job outcomes are data in the
	// report; only a driver-level failure exits non-zero.
	if _, err := a.TickOnce(ctx, time.Now()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	a.FlushAlerts(ctx)
}

func printRuns(ctx context.Context, a *app.App, job string, n int) error {
	st := a.Store()
	if st == nil {
		return fmt.Errorf("history is not configured")
	}
	runs, err := st.RecentRuns(ctx, job, n)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Printf("no recorded runs for %q\n", job)
		return nil
	}
	for _, r := range runs {
		line := fmt.Sprintf("%s  %-22s  %8s", r.Started.Format(time.RFC3339), r.Outcome, r.Duration.Round(time.Millisecond))
		if r.Err != "" {
			line += "  " + r.Err
		}
		fmt.Println(line)
	}
	return nil
}
