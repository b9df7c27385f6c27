package supervise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/loykin/botsup/internal/config"
	"github.com/loykin/botsup/internal/env"
	"github.com/loykin/botsup/internal/record"
)

// ErrLaunchFailed means the worker was spawned but did not survive the settle
// delay. No record is left behind, so re-invoking start is safe.
var ErrLaunchFailed = errors.New("worker launch failed")

// AlreadyRunningError reports a start request against a live worker.
type AlreadyRunningError struct {
	PID int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("worker already running with pid %d", e.PID)
}

// StopOutcome distinguishes an actual shutdown from a no-op.
type StopOutcome int

const (
	NotRunning StopOutcome = iota
	Stopped
)

func (o StopOutcome) String() string {
	if o == Stopped {
		return "stopped"
	}
	return "not running"
}

// Supervisor owns the record protocol for the single worker: detached launch
// with settle verification, graceful stop with bounded escalation, and lazy
// stale-record cleanup. Every record access runs under the exclusive lock.
type Supervisor struct {
	s   config.Settings
	rec *record.File
	log *slog.Logger
}

func New(s config.Settings, log *slog.Logger) *Supervisor {
	return &Supervisor{s: s, rec: record.New(s.PIDFile), log: log}
}

// RecordPath returns the record location, for reporting.
func (sv *Supervisor) RecordPath() string { return sv.rec.Path() }

// Start launches the worker detached from this invocation: own session,
// stdout+stderr appended to the worker log, stdin from the null device. The
// record is written only after the settle delay confirms the process is up.
func (sv *Supervisor) Start(ctx context.Context) error {
	return sv.rec.WithLock(ctx, func() error {
		if r, err := sv.rec.Read(); err == nil {
			if sv.liveRecord(r) {
				return &AlreadyRunningError{PID: r.PID}
			}
			sv.log.Warn("removing stale record before start", "pid", r.PID)
			if err := sv.rec.Remove(); err != nil {
				return err
			}
		} else if errors.Is(err, record.ErrCorruptRecord) {
			sv.log.Warn("removing corrupt record before start", "path", sv.rec.Path())
			if err := sv.rec.Remove(); err != nil {
				return err
			}
		}

		logFile, err := sv.openWorkerLog()
		if err != nil {
			return err
		}
		defer func() { _ = logFile.Close() }()

		eb := env.New()
		// Unbuffered stdout, or the redirected log lags minutes behind.
		eb.Set("PYTHONUNBUFFERED", "1")
		eb.SetPairs(sv.s.WorkerEnv)

		cmd := exec.Command(sv.s.VenvPython(), sv.s.Entry)
		cmd.Dir = sv.s.WorkDir
		cmd.Env = eb.Environ()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
		configureDetached(cmd)

		if err := cmd.Start(); err != nil {
			return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
		}
		pid := cmd.Process.Pid
		sv.log.Debug("worker spawned, settling", "pid", pid, "delay", sv.s.SettleDelay)

		if err := sleepCtx(ctx, sv.s.SettleDelay); err != nil {
			_ = killProcess(pid)
			_ = cmd.Wait()
			return err
		}
		if workerGone(pid) {
			_ = cmd.Wait()
			return fmt.Errorf("%w: worker exited during settle delay, see %s", ErrLaunchFailed, sv.s.WorkerLog)
		}
		start := record.CurrentStartUnix(pid)
		if start <= 0 {
			_ = killProcess(pid)
			_ = cmd.Wait()
			return fmt.Errorf("%w: could not fingerprint pid %d", ErrLaunchFailed, pid)
		}
		if err := sv.rec.Write(record.Record{PID: pid, StartUnix: start}); err != nil {
			_ = killProcess(pid)
			_ = cmd.Wait()
			return err
		}
		sv.log.Info("worker started", "pid", pid, "log", sv.s.WorkerLog)
		return nil
	})
}

// Stop terminates the recorded worker. Without a record, or with a record for
// a dead process, it is a no-op reporting NotRunning; the stale record is
// deleted. A live worker gets SIGTERM for its process group, a bounded poll
// window, then SIGKILL. The record is removed once the process is confirmed
// gone.
func (sv *Supervisor) Stop(ctx context.Context) (StopOutcome, error) {
	outcome := NotRunning
	err := sv.rec.WithLock(ctx, func() error {
		r, err := sv.rec.Read()
		if errors.Is(err, record.ErrNoRecord) {
			return nil
		}
		if errors.Is(err, record.ErrCorruptRecord) {
			sv.log.Warn("removing corrupt record", "path", sv.rec.Path())
			return sv.rec.Remove()
		}
		if err != nil {
			return err
		}
		if !sv.liveRecord(r) {
			sv.log.Warn("removing stale record", "pid", r.PID)
			return sv.rec.Remove()
		}

		sv.log.Info("stopping worker", "pid", r.PID)
		_ = terminateProcess(r.PID)
		for i := 0; i < sv.s.StopAttempts; i++ {
			if workerGone(r.PID) {
				break
			}
			if err := sleepCtx(ctx, sv.s.StopInterval); err != nil {
				return err
			}
		}
		if !workerGone(r.PID) {
			sv.log.Warn("worker ignored termination request, killing", "pid", r.PID)
			_ = killProcess(r.PID)
			_ = sleepCtx(ctx, 200*time.Millisecond)
		}
		if !workerGone(r.PID) {
			return fmt.Errorf("pid %d still alive after kill", r.PID)
		}
		outcome = Stopped
		sv.log.Info("worker stopped", "pid", r.PID)
		return sv.rec.Remove()
	})
	return outcome, err
}

// Restart is Stop, a fixed pause, then Start. Not atomic: a crash between the
// halves leaves the worker down, which the next invocation observes and
// recovers.
func (sv *Supervisor) Restart(ctx context.Context) error {
	if _, err := sv.Stop(ctx); err != nil {
		return err
	}
	if err := sleepCtx(ctx, sv.s.RestartPause); err != nil {
		return err
	}
	return sv.Start(ctx)
}

// Alive reports worker liveness. Absence of a process for a recorded pid is
// data, not an error: the stale record is deleted on the way out.
func (sv *Supervisor) Alive(ctx context.Context) bool {
	_, ok := sv.Current(ctx)
	return ok
}

// Current returns the record of the live worker, or ok=false when none runs.
// Stale and corrupt records are cleaned up as a side effect.
func (sv *Supervisor) Current(ctx context.Context) (record.Record, bool) {
	var (
		out record.Record
		ok  bool
	)
	err := sv.rec.WithLock(ctx, func() error {
		r, err := sv.rec.Read()
		if errors.Is(err, record.ErrNoRecord) {
			return nil
		}
		if errors.Is(err, record.ErrCorruptRecord) {
			sv.log.Warn("removing corrupt record", "path", sv.rec.Path())
			return sv.rec.Remove()
		}
		if err != nil {
			return err
		}
		if !sv.liveRecord(r) {
			sv.log.Warn("removing stale record", "pid", r.PID)
			return sv.rec.Remove()
		}
		out, ok = r, true
		return nil
	})
	if err != nil {
		sv.log.Warn("liveness check failed", "error", err)
		return record.Record{}, false
	}
	return out, ok
}

// liveRecord is the full liveness predicate: process-table presence, matching
// start-time fingerprint, and not a zombie left behind by this invocation.
func (sv *Supervisor) liveRecord(r record.Record) bool {
	return record.Alive(r) && !workerGone(r.PID)
}

func (sv *Supervisor) openWorkerLog() (*os.File, error) {
	if dir := filepath.Dir(sv.s.WorkerLog); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(sv.s.WorkerLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open worker log: %w", err)
	}
	return f, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
