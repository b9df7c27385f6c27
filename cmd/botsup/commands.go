package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loykin/botsup/internal/report"
	"github.com/loykin/botsup/internal/supervise"
	"github.com/loykin/botsup/internal/update"
	"github.com/loykin/botsup/pkg/template"
)

// Flow names recorded in the audit trail and the metrics labels.
const (
	flowRun       = "run"
	flowStart     = "start"
	flowStop      = "stop"
	flowRestart   = "restart"
	flowUpdate    = "update"
	flowInstall   = "install"
	flowReinstall = "reinstall"
)

// command binds the operator flows to the persistent flags. Method-style
// handlers keep cobra wiring separate from the flow logic.
type command struct {
	g *GlobalFlags
}

func (c command) withSession(fn func(ctx context.Context, ss *session) error) error {
	ss, err := newSession(c.g)
	if err != nil {
		return err
	}
	defer ss.Close()
	return fn(context.Background(), ss)
}

// Run is the default flow: sync, provision, validate, then act on the
// decision table.
func (c command) Run() error {
	return c.withSession(func(ctx context.Context, ss *session) error {
		if err := ss.preflightGate(false); err != nil {
			return err
		}
		out, err := ss.orch.Run(ctx)
		ss.finish(ctx, flowRun, out, err)
		if err != nil {
			return err
		}
		switch out.Action {
		case update.ActionNone:
			c.infof("worker is up to date and running (pid %d)", out.PID)
		case update.ActionStart:
			c.successf("worker started (pid %d)", out.PID)
		case update.ActionRestart:
			c.successf("update applied, worker restarted (pid %d)", out.PID)
		}
		return nil
	})
}

// Start provisions and launches. A worker that is already running is a
// no-op, not a failure.
func (c command) Start() error {
	return c.withSession(func(ctx context.Context, ss *session) error {
		if err := ss.preflightGate(false); err != nil {
			return err
		}
		out, err := ss.orch.Start(ctx)
		var already *supervise.AlreadyRunningError
		if errors.As(err, &already) {
			ss.finish(ctx, flowStart, out, nil)
			c.infof("worker already running (pid %d)", already.PID)
			return nil
		}
		ss.finish(ctx, flowStart, out, err)
		if err != nil {
			return err
		}
		c.successf("worker started (pid %d)", out.PID)
		return nil
	})
}

func (c command) Stop() error {
	return c.withSession(func(ctx context.Context, ss *session) error {
		out, err := ss.orch.Stop(ctx)
		ss.finish(ctx, flowStop, out, err)
		if err != nil {
			return err
		}
		if out.Stop == supervise.Stopped {
			c.successf("worker stopped")
		} else {
			c.infof("worker was not running")
		}
		return nil
	})
}

// Restart provisions and restarts unconditionally.
func (c command) Restart() error {
	return c.withSession(func(ctx context.Context, ss *session) error {
		if err := ss.preflightGate(false); err != nil {
			return err
		}
		out, err := ss.orch.Restart(ctx)
		ss.finish(ctx, flowRestart, out, err)
		if err != nil {
			return err
		}
		c.successf("worker restarted (pid %d)", out.PID)
		return nil
	})
}

// Update is the force-refresh path: stop, sync, provision, start.
func (c command) Update() error {
	return c.withSession(func(ctx context.Context, ss *session) error {
		if err := ss.preflightGate(false); err != nil {
			return err
		}
		out, err := ss.orch.Update(ctx)
		ss.finish(ctx, flowUpdate, out, err)
		if err != nil {
			return err
		}
		c.successf("worker updated (%s) and running (pid %d)", out.Signal, out.PID)
		return nil
	})
}

// Install prepares the working copy, virtualenv and assets without touching
// the worker process.
func (c command) Install() error {
	return c.withSession(func(ctx context.Context, ss *session) error {
		if err := ss.preflightGate(true); err != nil {
			return err
		}
		out, err := ss.orch.Install(ctx)
		ss.finish(ctx, flowInstall, out, err)
		if err != nil {
			return err
		}
		c.successf("installation complete")
		c.dimf("run 'botsup start' to launch the worker")
		return nil
	})
}

// Reinstall wipes the working copy and virtualenv after confirmation, then
// reinstalls from the remote.
func (c command) Reinstall(f ReinstallFlags) error {
	return c.withSession(func(ctx context.Context, ss *session) error {
		if err := ss.preflightGate(true); err != nil {
			return err
		}
		if !f.Yes {
			c.warnf("reinstall removes the working copy, the virtualenv and the worker config file")
			if !confirm(os.Stdin, c.paint(colorBold)+"Continue?"+c.paint(colorReset)+" [y/N] ") {
				c.dimf("aborted")
				return nil
			}
		}
		out, err := ss.orch.Reinstall(ctx)
		ss.finish(ctx, flowReinstall, out, err)
		if err != nil {
			return err
		}
		c.successf("reinstallation complete")
		c.dimf("recreate the worker config file, then run 'botsup start'")
		return nil
	})
}

// Init writes a starter file into the base directory. It loads no existing
// configuration: its job is to create one.
func (c command) Init(f InitFlags) error {
	kind := template.Kind(f.Kind)
	base, err := filepath.Abs(c.g.BaseDir)
	if err != nil {
		return err
	}
	content, err := template.Render(kind, template.Params{
		BaseDir:  base,
		RepoURL:  f.RepoURL,
		Branch:   f.Branch,
		Schedule: f.Schedule,
	})
	if err != nil {
		return err
	}
	out := f.Output
	if out == "" {
		out = filepath.Join(base, template.FileName(kind))
	}
	if _, err := os.Stat(out); err == nil && !f.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", out)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return err
	}
	if err := os.WriteFile(out, content, 0o644); err != nil {
		return fmt.Errorf("write starter file: %w", err)
	}
	c.successf("%s written", out)
	if kind == template.KindConfig {
		c.dimf("set repo_url, then run 'botsup install'")
	}
	return nil
}

// Status renders the read-only snapshot. It records nothing.
func (c command) Status(f StatusFlags) error {
	return c.withSession(func(ctx context.Context, ss *session) error {
		st := ss.reporter.Gather(ctx)
		if f.JSON {
			printJSON(st)
		} else {
			report.Render(os.Stdout, st, ss.color)
		}
		if !st.Running {
			return errWorkerNotRunning
		}
		return nil
	})
}

// Logs prints the tail of the worker log.
func (c command) Logs(f LogsFlags) error {
	return c.withSession(func(_ context.Context, ss *session) error {
		return report.TailLines(ss.settings.WorkerLog, f.Lines, os.Stdout)
	})
}
