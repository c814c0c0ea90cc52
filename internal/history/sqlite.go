package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/sched"
	logx "github.com/spacedlevo/prediction-league-scripts-sub001/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms)); err != nil {
			log.Warn("sqlite busy_timeout not applied", logx.Err(err))
		}
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Warn("sqlite WAL mode not enabled", logx.Err(err))
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		log.Warn("sqlite synchronous mode not set", logx.Err(err))
	}

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, r sched.RunResult) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.Started.IsZero() {
		r.Started = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(job, started_at, duration_ms, outcome, exit_code, err, output_tail)
		 VALUES(?,?,?,?,?,?,?)`,
		r.Job, r.Started.Format(time.RFC3339Nano), r.Duration.Milliseconds(),
		string(r.Outcome), r.ExitCode, nullStr(r.Err), nullStr(r.OutputTail),
	)
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, job string, limit int) ([]sched.RunResult, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job, started_at, duration_ms, outcome, exit_code, COALESCE(err,''), COALESCE(output_tail,'')
		 FROM runs WHERE job = ? ORDER BY started_at DESC LIMIT ?`, job, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sched.RunResult
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) LastRun(ctx context.Context, job string) (*sched.RunResult, error) {
	runs, err := s.RecentRuns(ctx, job, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (sched.RunResult, error) {
	var (
		r       sched.RunResult
		started string
		durMS   int64
		outcome string
	)
	if err := row.Scan(&r.Job, &started, &durMS, &outcome, &r.ExitCode, &r.Err, &r.OutputTail); err != nil {
		return r, err
	}
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return r, fmt.Errorf("bad started_at %q: %w", started, err)
	}
	r.Started = t
	r.Duration = time.Duration(durMS) * time.Millisecond
	r.Outcome = sched.Outcome(outcome)
	return r, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
