package botsup

import (
	"context"
	"log/slog"

	cfg "github.com/loykin/botsup/internal/config"
	"github.com/loykin/botsup/internal/gitsync"
	"github.com/loykin/botsup/internal/preflight"
	"github.com/loykin/botsup/internal/report"
	"github.com/loykin/botsup/internal/supervise"
	"github.com/loykin/botsup/internal/update"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Settings = cfg.Settings

type Outcome = update.Outcome

type Action = update.Action

const (
	ActionNone    = update.ActionNone
	ActionStart   = update.ActionStart
	ActionRestart = update.ActionRestart
)

type Signal = gitsync.Signal

const (
	Unchanged      = gitsync.Unchanged
	Updated        = gitsync.Updated
	NewlyInstalled = gitsync.NewlyInstalled
)

type Status = report.Status

type StopOutcome = supervise.StopOutcome

const (
	StopNotRunning = supervise.NotRunning
	StopStopped    = supervise.Stopped
)

type CheckResult = preflight.Result

// Supervisor is a thin facade over internal/update.Orchestrator.
// It provides a stable public API for embedding.

type Supervisor struct {
	inner    *update.Orchestrator
	reporter *report.Reporter
}

// LoadSettings reads the supervisor configuration at path and resolves
// every relative location against baseDir. An empty path falls back to
// baseDir/botsup.toml when present, otherwise built-in defaults apply.
func LoadSettings(path, baseDir string) (Settings, error) {
	return cfg.Load(path, baseDir)
}

func New(s Settings, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		inner:    update.New(s, log),
		reporter: report.New(s, log, nil),
	}
}

// Decide maps worker liveness and the source sync signal to the action
// a default invocation takes.
func Decide(alive bool, sig Signal) Action { return update.Decide(alive, sig) }

// Preflight verifies host dependencies (git, the configured Python, a
// writable base directory) without touching the worker.
func Preflight(s Settings) *CheckResult { return preflight.RunAll(s.Python, s.BaseDir) }

func (sv *Supervisor) Run(ctx context.Context) (Outcome, error)     { return sv.inner.Run(ctx) }
func (sv *Supervisor) Start(ctx context.Context) (Outcome, error)   { return sv.inner.Start(ctx) }
func (sv *Supervisor) Stop(ctx context.Context) (Outcome, error)    { return sv.inner.Stop(ctx) }
func (sv *Supervisor) Restart(ctx context.Context) (Outcome, error) { return sv.inner.Restart(ctx) }
func (sv *Supervisor) Update(ctx context.Context) (Outcome, error)  { return sv.inner.Update(ctx) }
func (sv *Supervisor) Install(ctx context.Context) (Outcome, error) { return sv.inner.Install(ctx) }
func (sv *Supervisor) Reinstall(ctx context.Context) (Outcome, error) {
	return sv.inner.Reinstall(ctx)
}

// Status reports the worker and installation state. It never fails;
// fields the host cannot answer come back zero-valued.
func (sv *Supervisor) Status(ctx context.Context) Status { return sv.reporter.Gather(ctx) }
