package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/sched"
	logx "github.com/spacedlevo/prediction-league-scripts-sub001/pkg/logx"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the run-result store.
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite; 0 means default
}

// Store is the persistence API for run results.
//
// Results are append-only: the scheduler writes them and never updates or
// deletes them (retention is an operator concern).
type Store interface {
	AppendRun(ctx context.Context, r sched.RunResult) error
	RecentRuns(ctx context.Context, job string, limit int) ([]sched.RunResult, error)
	LastRun(ctx context.Context, job string) (*sched.RunResult, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if history is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
