// Package update sequences synchronization, provisioning, validation and
// supervision into the operator-facing flows, and owns the decision of
// whether a running worker must be restarted.
package update

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/loykin/botsup/internal/config"
	"github.com/loykin/botsup/internal/gitsync"
	"github.com/loykin/botsup/internal/provision"
	"github.com/loykin/botsup/internal/supervise"
)

// Action is what an invocation decided to do with the worker process.
type Action int

const (
	ActionNone Action = iota
	ActionStart
	ActionRestart
)

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionRestart:
		return "restart"
	default:
		return "no-op"
	}
}

// Decide maps current liveness and the sync outcome to the required action.
// It is re-evaluated from observable state on every invocation; nothing is
// cached between runs.
func Decide(alive bool, sig gitsync.Signal) Action {
	if !alive {
		return ActionStart
	}
	if sig == gitsync.Unchanged {
		return ActionNone
	}
	return ActionRestart
}

// Outcome summarizes what a flow did, for rendering and the event log.
type Outcome struct {
	Signal gitsync.Signal        // sync result, valid when Synced
	Synced bool                  // whether the flow ran a sync
	Action Action                // supervision action taken by the flow
	Stop   supervise.StopOutcome // stop result, valid when stop-style flows ran
	PID    int                   // live worker pid after the flow, 0 when none
}

// Orchestrator wires the collaborators behind the operator flows. One
// instance serves one invocation.
type Orchestrator struct {
	s    config.Settings
	log  *slog.Logger
	sup  *supervise.Supervisor
	sync *gitsync.Syncer
	prov *provision.Provisioner
}

func New(s config.Settings, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		s:    s,
		log:  log,
		sup:  supervise.New(s, log),
		sync: gitsync.New(s, log),
		prov: provision.New(s, log),
	}
}

// Supervisor exposes the process supervisor for direct lifecycle commands.
func (o *Orchestrator) Supervisor() *supervise.Supervisor { return o.sup }

// Provisioner exposes environment state probes for status reporting.
func (o *Orchestrator) Provisioner() *provision.Provisioner { return o.prov }

// Run is the default flow: sync, provision, validate, then act on the
// decision table. A running worker is only restarted when sync reported
// new content.
func (o *Orchestrator) Run(ctx context.Context) (Outcome, error) {
	var out Outcome
	sig, err := o.sync.Sync(ctx)
	if err != nil {
		return out, err
	}
	out.Signal, out.Synced = sig, true
	if err := o.ensureEnvironment(ctx); err != nil {
		return out, err
	}
	if err := o.s.ValidateWorker(); err != nil {
		return out, err
	}
	alive := o.sup.Alive(ctx)
	out.Action = Decide(alive, sig)
	o.log.Info("decided", "alive", alive, "signal", sig.String(), "action", out.Action.String())
	switch out.Action {
	case ActionNone:
	case ActionStart:
		if err := o.sup.Start(ctx); err != nil {
			return out, err
		}
	case ActionRestart:
		if err := o.sup.Restart(ctx); err != nil {
			return out, err
		}
	}
	out.PID = o.currentPID(ctx)
	return out, nil
}

// Start provisions and launches. Fails with AlreadyRunningError when a live
// worker exists.
func (o *Orchestrator) Start(ctx context.Context) (Outcome, error) {
	var out Outcome
	sig, err := o.sync.Sync(ctx)
	if err != nil {
		return out, err
	}
	out.Signal, out.Synced = sig, true
	if err := o.ensureEnvironment(ctx); err != nil {
		return out, err
	}
	if err := o.s.ValidateWorker(); err != nil {
		return out, err
	}
	out.Action = ActionStart
	if err := o.sup.Start(ctx); err != nil {
		return out, err
	}
	out.PID = o.currentPID(ctx)
	return out, nil
}

// Stop terminates the worker if one is running. Never syncs or provisions.
func (o *Orchestrator) Stop(ctx context.Context) (Outcome, error) {
	var out Outcome
	res, err := o.sup.Stop(ctx)
	out.Stop = res
	return out, err
}

// Restart provisions and restarts unconditionally, regardless of whether
// sync found new content.
func (o *Orchestrator) Restart(ctx context.Context) (Outcome, error) {
	var out Outcome
	sig, err := o.sync.Sync(ctx)
	if err != nil {
		return out, err
	}
	out.Signal, out.Synced = sig, true
	if err := o.ensureEnvironment(ctx); err != nil {
		return out, err
	}
	if err := o.s.ValidateWorker(); err != nil {
		return out, err
	}
	out.Action = ActionRestart
	if err := o.sup.Restart(ctx); err != nil {
		return out, err
	}
	out.PID = o.currentPID(ctx)
	return out, nil
}

// Update is the force-refresh path: stop, sync, provision, validate, start.
// It runs the full sequence even when sync reports no new content.
func (o *Orchestrator) Update(ctx context.Context) (Outcome, error) {
	var out Outcome
	// Validate before stopping so a broken config never takes a healthy
	// worker down. A fresh install has nothing to validate yet.
	if o.sync.Cloned() {
		if err := o.s.ValidateWorker(); err != nil {
			return out, err
		}
	}
	res, err := o.sup.Stop(ctx)
	out.Stop = res
	if err != nil {
		return out, err
	}
	sig, err := o.sync.Sync(ctx)
	if err != nil {
		return out, err
	}
	out.Signal, out.Synced = sig, true
	if err := o.ensureEnvironment(ctx); err != nil {
		return out, err
	}
	if err := o.s.ValidateWorker(); err != nil {
		return out, err
	}
	out.Action = ActionStart
	if err := o.sup.Start(ctx); err != nil {
		return out, err
	}
	out.PID = o.currentPID(ctx)
	return out, nil
}

// Install prepares everything without touching the worker process: clone,
// virtualenv, dependencies, font, config validation.
func (o *Orchestrator) Install(ctx context.Context) (Outcome, error) {
	var out Outcome
	sig, err := o.sync.Sync(ctx)
	if err != nil {
		return out, err
	}
	out.Signal, out.Synced = sig, true
	if err := o.ensureEnvironment(ctx); err != nil {
		return out, err
	}
	out.PID = o.currentPID(ctx)
	if err := o.s.ValidateWorker(); err != nil {
		return out, err
	}
	return out, nil
}

// Reinstall wipes the working copy and the virtualenv, then runs the install
// flow from scratch. The caller is responsible for confirming first; local
// modifications and the worker config file do not survive this.
func (o *Orchestrator) Reinstall(ctx context.Context) (Outcome, error) {
	var out Outcome
	res, err := o.sup.Stop(ctx)
	out.Stop = res
	if err != nil {
		return out, err
	}
	o.log.Warn("removing working copy and virtualenv", "workdir", o.s.WorkDir, "venv", o.s.VenvDir)
	if err := os.RemoveAll(o.s.WorkDir); err != nil {
		return out, fmt.Errorf("remove working copy: %w", err)
	}
	if err := o.prov.Remove(); err != nil {
		return out, err
	}
	inst, err := o.Install(ctx)
	inst.Stop = out.Stop
	return inst, err
}

// ensureEnvironment is the idempotent provisioning step shared by all flows
// that may launch the worker.
func (o *Orchestrator) ensureEnvironment(ctx context.Context) error {
	if err := o.prov.Ensure(ctx); err != nil {
		return err
	}
	return o.prov.EnsureFont(ctx)
}

func (o *Orchestrator) currentPID(ctx context.Context) int {
	if r, ok := o.sup.Current(ctx); ok {
		return r.PID
	}
	return 0
}
