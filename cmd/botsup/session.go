package main

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/loykin/botsup/internal/config"
	"github.com/loykin/botsup/internal/history"
	"github.com/loykin/botsup/internal/logger"
	"github.com/loykin/botsup/internal/metrics"
	"github.com/loykin/botsup/internal/preflight"
	"github.com/loykin/botsup/internal/report"
	"github.com/loykin/botsup/internal/update"
)

// Exit codes for scripting. Status follows the LSB init convention of 3 for
// "not running".
const (
	exitError      = 1
	exitNotRunning = 3
)

// errWorkerNotRunning makes a stopped worker visible through the status
// command's exit code without being printed as a failure.
var errWorkerNotRunning = errors.New("worker is not running")

// session carries the wired collaborators of one invocation.
type session struct {
	settings config.Settings
	log      *slog.Logger
	hist     *history.Store
	metrics  *metrics.Exporter
	orch     *update.Orchestrator
	reporter *report.Reporter
	color    bool
}

func newSession(g *GlobalFlags) (*session, error) {
	s, err := config.Load(g.ConfigPath, g.BaseDir)
	if err != nil {
		return nil, err
	}
	level := logger.LevelInfo
	if g.Verbose {
		level = logger.LevelDebug
	}
	log := logger.Config{
		Slog: logger.SlogConfig{Level: level, Color: !g.NoColor},
		File: s.Log,
	}.NewSlogger()

	// The audit trail is best-effort: a broken database downgrades to a nil
	// store, never to a failed invocation.
	hist, err := history.Open(s.HistoryPath)
	if err != nil {
		log.Warn("history store unavailable", "path", s.HistoryPath, "error", err)
		hist = nil
	}

	return &session{
		settings: s,
		log:      log,
		hist:     hist,
		metrics:  metrics.New(s.MetricsPath),
		orch:     update.New(s, log),
		reporter: report.New(s, log, hist),
		color:    !g.NoColor,
	}, nil
}

func (ss *session) Close() {
	if err := ss.hist.Close(); err != nil {
		ss.log.Warn("closing history store", "error", err)
	}
}

// preflightGate aborts flows that need external tools before any state is
// touched. Install-family flows show the probe table either way; the rest
// stay quiet unless a check fails.
func (ss *session) preflightGate(show bool) error {
	res := preflight.RunAll(ss.settings.Python, ss.settings.BaseDir)
	for _, c := range res.Checks {
		ss.log.Debug("preflight", "result", c.String())
	}
	if show || !res.Passed {
		preflight.PrintResults(res)
	}
	if !res.Passed {
		return res.Err()
	}
	return nil
}

// finish records one action flow's outcome in the audit trail and rewrites
// the metrics snapshot. Read-only commands never call this.
func (ss *session) finish(ctx context.Context, flow string, out update.Outcome, runErr error) {
	outcome := history.OutcomeOK
	detail := ""
	switch {
	case runErr != nil:
		outcome = history.OutcomeError
		detail = runErr.Error()
	case out.Synced:
		detail = out.Signal.String()
	}
	if err := ss.hist.Append(ctx, history.Event{
		Flow:    flow,
		Outcome: outcome,
		PID:     out.PID,
		Detail:  detail,
	}); err != nil {
		ss.log.Warn("recording history event", "error", err)
	}

	st := ss.reporter.Gather(ctx)
	ss.metrics.SetWorkerUp(st.Running)
	ss.metrics.SetWorkerPID(st.PID)
	if st.SlaveBots != nil {
		ss.metrics.SetSlaveBots(*st.SlaveBots, true)
	} else {
		ss.metrics.SetSlaveBots(0, false)
	}
	ss.metrics.SetLastAction(time.Now())
	ss.metrics.IncInvocation(flow, outcome)
	if err := ss.metrics.Write(); err != nil {
		ss.log.Warn("writing metrics snapshot", "error", err)
	}
}
