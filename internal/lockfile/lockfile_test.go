package lockfile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	logx "github.com/spacedlevo/prediction-league-scripts-sub001/pkg/logx"
)

// A pid far beyond any realistic pid_max, so the liveness probe sees it as gone.
const deadPID = 1 << 30

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), logx.Nop())
}

func writeRecord(t *testing.T, m *Manager, rec Record) {
	t.Helper()
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(m.path(rec.Job), b, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAcquireReleaseCycle(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	now := time.Now()
	pid := os.Getpid()

	rec, err := m.TryAcquire("fetch_results", pid, now, time.Hour)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if rec.Job != "fetch_results" || rec.PID != pid {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if _, err := m.TryAcquire("fetch_results", pid, now, time.Hour); !errors.Is(err, ErrHeld) {
		t.Fatalf("second acquire: err = %v, want ErrHeld", err)
	}

	// Release by the wrong pid must not remove the lock.
	if err := m.Release("fetch_results", pid+1); err != nil {
		t.Fatalf("Release(wrong pid): %v", err)
	}
	if _, err := m.TryAcquire("fetch_results", pid, now, time.Hour); !errors.Is(err, ErrHeld) {
		t.Fatalf("lock vanished after wrong-pid release: err = %v", err)
	}

	if err := m.Release("fetch_results", pid); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := m.TryAcquire("fetch_results", pid, now, time.Hour); err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
}

func TestReleaseWithoutLockIsNoop(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	if err := m.Release("never_locked", os.Getpid()); err != nil {
		t.Fatalf("Release on absent lock: %v", err)
	}
}

func TestStaleDeadHolderReclaimed(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	now := time.Now()
	writeRecord(t, m, Record{Job: "scoring", PID: deadPID, AcquiredAt: now.Add(-time.Hour)})

	rec, err := m.TryAcquire("scoring", os.Getpid(), now, 10*time.Minute)
	if err != nil {
		t.Fatalf("TryAcquire over stale lock: %v", err)
	}
	if rec.PID != os.Getpid() {
		t.Fatalf("reclaimed record pid = %d, want %d", rec.PID, os.Getpid())
	}
}

func TestReclaimYieldsToReplacedLock(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	now := time.Now()
	writeRecord(t, m, Record{Job: "scoring", PID: deadPID, AcquiredAt: now.Add(-time.Hour)})

	path := m.path("scoring")
	observed, err := m.read(path)
	if err != nil || observed == nil {
		t.Fatalf("read stale record: %+v, %v", observed, err)
	}

	// A second acquirer completes a full reclaim before the first acts on its
	// observation, leaving a fresh lock in place.
	fresh, err := m.TryAcquire("scoring", os.Getpid(), now, 10*time.Minute)
	if err != nil {
		t.Fatalf("TryAcquire over stale lock: %v", err)
	}

	// The late reclaim must fail and leave the fresh lock untouched.
	if m.reclaim(path, "scoring", observed, "holder gone") {
		t.Fatal("reclaim succeeded against an already-replaced lock")
	}
	got, err := m.read(path)
	if err != nil {
		t.Fatalf("read after failed reclaim: %v", err)
	}
	if got == nil || got.PID != fresh.PID || !got.AcquiredAt.Equal(fresh.AcquiredAt) {
		t.Fatalf("fresh lock disturbed by late reclaim: %+v", got)
	}
	if _, err := m.TryAcquire("scoring", os.Getpid()+1, now, time.Hour); !errors.Is(err, ErrHeld) {
		t.Fatalf("err = %v, want ErrHeld while the fresh lock is held", err)
	}
}

func TestConcurrentStaleReclaimSingleWinner(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	now := time.Now()
	writeRecord(t, m, Record{Job: "contended", PID: deadPID, AcquiredAt: now.Add(-time.Hour)})

	const n = 8
	var wg sync.WaitGroup
	wins := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := m.TryAcquire("contended", os.Getpid()+i, now, 10*time.Minute); err == nil {
				wins <- i
			} else if !errors.Is(err, ErrHeld) {
				t.Errorf("goroutine %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	got := 0
	for range wins {
		got++
	}
	if got != 1 {
		t.Fatalf("reclaim winners = %d, want exactly 1", got)
	}
}

func TestStaleButAliveHolderDenied(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	now := time.Now()
	// Our own pid is certainly alive: a stale record must still deny.
	writeRecord(t, m, Record{Job: "scoring", PID: os.Getpid(), AcquiredAt: now.Add(-time.Hour)})

	if _, err := m.TryAcquire("scoring", os.Getpid(), now, 10*time.Minute); !errors.Is(err, ErrHeld) {
		t.Fatalf("err = %v, want ErrHeld for stale lock with live holder", err)
	}
}

func TestFreshLockByOtherHolderDenied(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	now := time.Now()
	writeRecord(t, m, Record{Job: "odds", PID: deadPID, AcquiredAt: now})

	// Fresh records deny without any liveness probe.
	if _, err := m.TryAcquire("odds", os.Getpid(), now, time.Hour); !errors.Is(err, ErrHeld) {
		t.Fatalf("err = %v, want ErrHeld", err)
	}
}

func TestEmptyRecordTreatedAsHeld(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Simulates catching a holder between create and write.
	if err := os.WriteFile(filepath.Join(m.dir, "mid.lock"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.TryAcquire("mid", os.Getpid(), time.Now(), time.Hour); !errors.Is(err, ErrHeld) {
		t.Fatalf("err = %v, want ErrHeld for empty record", err)
	}
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	now := time.Now()

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Distinct pids so a winner can be identified.
			if _, err := m.TryAcquire("contended", os.Getpid()+i, now, time.Hour); err == nil {
				wins <- i
			} else if !errors.Is(err, ErrHeld) {
				t.Errorf("goroutine %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	got := 0
	for range wins {
		got++
	}
	if got != 1 {
		t.Fatalf("winners = %d, want exactly 1", got)
	}
}

func TestPathSanitizesJobName(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	p := m.path("../evil/name")
	if filepath.Dir(p) != m.dir {
		t.Fatalf("lock path escaped dir: %s", p)
	}
}
