package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

var (
	// ErrNoRecord means no record file exists at the configured path.
	ErrNoRecord = errors.New("no supervision record")
	// ErrCorruptRecord means the record file exists but cannot be parsed.
	ErrCorruptRecord = errors.New("corrupt supervision record")
)

// Allowed drift between the stored start-time fingerprint and the one read
// from the process table. Boot-time derived clocks can wobble by a second.
const startUnixSlack = 2

const lockRetryInterval = 50 * time.Millisecond

// Record is the persisted proxy for the supervised worker: the process
// identifier plus a start-time fingerprint that guards against pid reuse.
type Record struct {
	PID       int
	StartUnix int64
}

// StartedAt returns the recorded launch time.
func (r Record) StartedAt() time.Time {
	return time.Unix(r.StartUnix, 0)
}

// File manages the record at a fixed path. All mutations are expected to run
// under WithLock; the lock lives in a sidecar file so it survives record
// deletion.
type File struct {
	path string
	lock *flock.Flock
}

func New(path string) *File {
	return &File{path: path, lock: flock.New(path + ".lock")}
}

func (f *File) Path() string { return f.path }

// WithLock runs fn while holding an exclusive lock on the record. The lock is
// acquired with bounded retries until ctx is done and released on every exit
// path.
func (f *File) WithLock(ctx context.Context, fn func() error) error {
	locked, err := f.lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return fmt.Errorf("acquire record lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("record lock %s held by another invocation", f.lock.Path())
	}
	defer func() { _ = f.lock.Unlock() }()
	return fn()
}

// Read parses the record file: first line the pid, second line a JSON meta
// object carrying the fingerprint.
func (f *File) Read() (Record, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNoRecord
		}
		return Record{}, fmt.Errorf("read %s: %w", f.path, err)
	}
	lines := strings.Split(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || pid <= 0 {
		return Record{}, fmt.Errorf("invalid pid in %s: %w", f.path, ErrCorruptRecord)
	}
	r := Record{PID: pid}
	if len(lines) >= 2 {
		var m struct {
			StartUnix int64 `json:"start_unix"`
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &m); err == nil {
			r.StartUnix = m.StartUnix
		}
	}
	return r, nil
}

// Write persists the record. The parent directory is created if needed.
func (f *File) Write(r Record) error {
	if r.PID <= 0 {
		return fmt.Errorf("refusing to record pid %d", r.PID)
	}
	meta, err := json.Marshal(struct {
		StartUnix int64 `json:"start_unix"`
	}{StartUnix: r.StartUnix})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}
	data := strconv.Itoa(r.PID) + "\n" + string(meta) + "\n"
	if err := os.WriteFile(f.path, []byte(data), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}

// Remove deletes the record file; a missing file is not an error.
func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", f.path, err)
	}
	return nil
}

// Alive reports whether the recorded process still runs and is the process
// that was recorded. The pid must exist in the process table and its current
// start time must match the stored fingerprint; a record without a
// fingerprint, or one whose fingerprint cannot be read back, counts as dead.
func Alive(r Record) bool {
	if r.PID <= 0 || r.StartUnix <= 0 {
		return false
	}
	if !pidAlive(r.PID) {
		return false
	}
	cur := procStartUnix(r.PID)
	if cur <= 0 {
		return false
	}
	diff := cur - r.StartUnix
	if diff < 0 {
		diff = -diff
	}
	return diff <= startUnixSlack
}

// CurrentStartUnix returns the start-time fingerprint for a live process, or
// 0 when it cannot be determined.
func CurrentStartUnix(pid int) int64 {
	return procStartUnix(pid)
}

// PIDExists reports bare process-table presence, without the fingerprint
// check. Stop escalation uses it to poll a process it already verified.
func PIDExists(pid int) bool {
	return pidAlive(pid)
}
