package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "github.com/spacedlevo/prediction-league-scripts-sub001/pkg/logx"
)

// ErrHeld is returned by TryAcquire when a valid lock already exists.
// Lock contention is a normal skip condition, not a failure.
var ErrHeld = errors.New("lock held")

// Record is the on-disk claim on a job's exclusive execution right.
// At most one valid record exists per job at any time.
type Record struct {
	Job        string    `json:"job"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
	Host       string    `json:"host,omitempty"`
}

// Manager implements per-job advisory locks backed by files in a single
// directory.
//
// Acquisition uses O_CREATE|O_EXCL so two racing ticks can never both win;
// there is no check-then-create gap anywhere in this package. Deletion is
// equally guarded: reclaim and release rename the lock file aside and
// re-verify its content before removing, so a record that changed hands
// after it was observed is never deleted out from under its holder.
type Manager struct {
	dir string
	log logx.Logger
}

func NewManager(dir string, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{dir: dir, log: log}
}

// TryAcquire claims the lock for job on behalf of pid.
//
// Outcomes:
//   - fresh lock: a new Record is written and returned
//   - valid existing lock: ErrHeld
//   - stale existing lock (older than staleAfter): reclaimed, unless the
//     recorded holder pid is still alive, in which case the lock is treated
//     as held to avoid double-execution
//   - backing-store failure: the underlying error, fatal to this job's
//     attempt only
func (m *Manager) TryAcquire(job string, pid int, now time.Time, staleAfter time.Duration) (*Record, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("lock dir: %w", err)
	}
	path := m.path(job)

	// Two passes: the second retries the atomic create after a stale reclaim.
	for attempt := 0; attempt < 2; attempt++ {
		rec, err := m.create(path, job, pid, now)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}

		existing, rerr := m.read(path)
		if rerr != nil {
			if errors.Is(rerr, os.ErrNotExist) {
				// Holder released between our create and read; retry.
				continue
			}
			return nil, rerr
		}
		if existing == nil {
			// Record file exists but is empty or unparseable: either the
			// holder is mid-write or the file is garbage. Treat as held now;
			// if it stays garbage it will age past staleAfter and the mtime
			// check below reclaims it on a later tick.
			if m.stat(path, now, staleAfter) {
				if !m.reclaim(path, job, nil, "corrupt record past stale threshold") {
					return nil, ErrHeld
				}
				continue
			}
			return nil, ErrHeld
		}

		if now.Sub(existing.AcquiredAt) <= staleAfter {
			return nil, ErrHeld
		}

		// Stale. Best-effort liveness probe on the recorded pid: a hung but
		// living holder must not be doubled up on.
		if existing.PID > 0 && pidAlive(existing.PID) {
			m.log.Warn("stale lock but holder still alive; leaving lock in place",
				logx.String("job", job),
				logx.Int("holder_pid", existing.PID),
				logx.Time("acquired_at", existing.AcquiredAt))
			return nil, ErrHeld
		}

		if !m.reclaim(path, job, existing, "holder gone") {
			return nil, ErrHeld
		}
	}
	return nil, ErrHeld
}

// Release removes the lock only if it is currently held by pid.
//
// It is a no-op (not an error) when the lock is absent, unreadable, or held
// by a different pid, so it is always safe to call from failure paths.
// Removal is delete-if-owned: the file is renamed aside, ownership is
// re-verified on the renamed copy, and a record that turns out not to be
// ours (reclaimed and re-issued since the first read) is put back.
func (m *Manager) Release(job string, pid int) error {
	path := m.path(job)
	rec, err := m.read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if rec == nil || rec.PID != pid {
		return nil
	}

	temp := tempName(path, "release", pid)
	if err := os.Rename(path, temp); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("release %s: %w", job, err)
	}
	got, _ := m.read(temp)
	if got == nil || got.PID != pid {
		m.restore(temp, path, job)
		return nil
	}
	if err := os.Remove(temp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release %s: %w", job, err)
	}
	return nil
}

func (m *Manager) create(path, job string, pid int, now time.Time) (*Record, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, err
		}
		return nil, fmt.Errorf("create lock %s: %w", job, err)
	}

	host, _ := os.Hostname()
	rec := &Record{Job: job, PID: pid, AcquiredAt: now, Host: host}
	enc := json.NewEncoder(f)
	werr := enc.Encode(rec)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		// Half-written lock would block the job until staleness; remove it.
		_ = os.Remove(path)
		return nil, fmt.Errorf("write lock %s: %w", job, werr)
	}
	return rec, nil
}

func (m *Manager) read(path string) (*Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, nil
	}
	return &rec, nil
}

// stat reports whether the file's mtime is older than staleAfter.
// Used only for unparseable records, where acquired_at is unavailable.
func (m *Manager) stat(path string, now time.Time, staleAfter time.Duration) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return now.Sub(fi.ModTime()) > staleAfter
}

// reclaim takes a stale lock out of service. The rename is the atomic
// compare-and-delete: exactly one reclaimer wins it, and the content check
// on the renamed copy catches a stale record that was replaced by a fresh
// one between observation and rename; that fresh lock is put back intact.
// Reports whether the caller may retry the atomic create.
func (m *Manager) reclaim(path, job string, observed *Record, reason string) bool {
	temp := tempName(path, "reclaim", os.Getpid())
	if err := os.Rename(path, temp); err != nil {
		// Another reclaimer renamed it first; the lock is contended.
		return false
	}

	got, _ := m.read(temp)
	if !sameRecord(observed, got) {
		m.restore(temp, path, job)
		return false
	}

	holderPID := 0
	if got != nil {
		holderPID = got.PID
	}
	m.log.Warn("stale lock reclaimed",
		logx.String("job", job),
		logx.Int("holder_pid", holderPID),
		logx.String("reason", reason))
	_ = os.Remove(temp)
	return true
}

// sameRecord reports whether b is the record previously observed as a.
// Empty or unparseable records read as nil on both sides.
func sameRecord(a, b *Record) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Job == b.Job && a.PID == b.PID && a.AcquiredAt.Equal(b.AcquiredAt)
}

// restore puts a displaced lock file back under its canonical path. Link is
// create-if-absent, so a lock created during the displacement window is
// never clobbered; a restore that loses that race strands the displaced
// holder, whose next Release becomes a no-op.
func (m *Manager) restore(temp, path, job string) {
	if err := os.Link(temp, path); err != nil {
		m.log.Warn("displaced lock not restored", logx.String("job", job), logx.Err(err))
	}
	_ = os.Remove(temp)
}

func tempName(path, op string, pid int) string {
	return fmt.Sprintf("%s.%s.%d.%d", path, op, pid, time.Now().UnixNano())
}

func (m *Manager) path(job string) string {
	// Job names come from config; flatten anything path-like.
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, job)
	return filepath.Join(m.dir, safe+".lock")
}
