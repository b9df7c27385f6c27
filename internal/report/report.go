// Package report is the read-only status side: it gathers supervision and
// environment state without mutating anything, and renders it for humans
// and for scripts.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/loykin/botsup/internal/config"
	"github.com/loykin/botsup/internal/gitsync"
	"github.com/loykin/botsup/internal/history"
	"github.com/loykin/botsup/internal/provision"
	"github.com/loykin/botsup/internal/supervise"
)

const (
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorReset  = "\033[0m"
)

// Status is one consistent snapshot of everything the status command shows.
// SlaveBots is nil when the worker data file is absent or unreadable.
type Status struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	WorkerLog   string         `json:"worker_log"`
	Installed   bool           `json:"installed"`
	VenvReady   bool           `json:"venv_ready"`
	EnvPresent  bool           `json:"env_present"`
	FontPresent bool           `json:"font_present"`
	SlaveBots   *int           `json:"slave_bots,omitempty"`
	LastEvent   *history.Event `json:"last_event,omitempty"`
}

// Uptime is how long the worker has been running, zero when it is not.
func (st Status) Uptime() time.Duration {
	if !st.Running || st.StartedAt.IsZero() {
		return 0
	}
	return time.Since(st.StartedAt).Truncate(time.Second)
}

// Reporter gathers Status. It never mutates supervision state beyond the
// supervisor's own lazy cleanup of stale records.
type Reporter struct {
	s    config.Settings
	sup  *supervise.Supervisor
	sync *gitsync.Syncer
	prov *provision.Provisioner
	hist *history.Store
}

func New(s config.Settings, log *slog.Logger, hist *history.Store) *Reporter {
	return &Reporter{
		s:    s,
		sup:  supervise.New(s, log),
		sync: gitsync.New(s, log),
		prov: provision.New(s, log),
		hist: hist,
	}
}

// Gather builds the snapshot. Every probe is best-effort; Gather itself
// cannot fail.
func (r *Reporter) Gather(ctx context.Context) Status {
	st := Status{
		WorkerLog:   r.s.WorkerLog,
		Installed:   r.sync.Cloned(),
		VenvReady:   r.prov.Ready(),
		EnvPresent:  r.s.EnvFilePresent(),
		FontPresent: r.prov.FontPresent(),
		SlaveBots:   slaveCount(r.s.DataFile),
	}
	if rec, ok := r.sup.Current(ctx); ok {
		st.Running = true
		st.PID = rec.PID
		st.StartedAt = rec.StartedAt()
	}
	if e, ok, err := r.hist.Last(ctx); err == nil && ok {
		st.LastEvent = &e
	}
	return st
}

// slaveCount reads the worker-owned data file, a JSON array of bot entries.
// Any problem yields nil, never an error: the file belongs to the worker and
// may be mid-write or absent.
func slaveCount(path string) *int {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	n := len(entries)
	return &n
}

// Render writes the human-readable status. color toggles ANSI sequences.
func Render(w io.Writer, st Status, color bool) {
	c := func(code string) string {
		if !color {
			return ""
		}
		return code
	}
	if st.Running {
		fmt.Fprintf(w, "\n%s●  worker is running%s  %spid %d%s", c(colorGreen+colorBold), c(colorReset), c(colorCyan), st.PID, c(colorReset))
		if up := st.Uptime(); up > 0 {
			fmt.Fprintf(w, "  %sup %s%s", c(colorDim), up, c(colorReset))
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintf(w, "\n%s●  worker is not running%s\n", c(colorRed+colorBold), c(colorReset))
	}
	fmt.Fprintf(w, "  %slog%s     %s\n", c(colorDim), c(colorReset), st.WorkerLog)
	fmt.Fprintf(w, "  %ssource%s  %s\n", c(colorDim), c(colorReset), presence(st.Installed, "installed", "not installed"))
	fmt.Fprintf(w, "  %svenv%s    %s\n", c(colorDim), c(colorReset), presence(st.VenvReady, "ready", "missing"))
	fmt.Fprintf(w, "  %sconfig%s  %s\n", c(colorDim), c(colorReset), presence(st.EnvPresent, "present", "missing"))
	fmt.Fprintf(w, "  %sfont%s    %s\n", c(colorDim), c(colorReset), presence(st.FontPresent, "present", "missing"))
	if st.SlaveBots != nil {
		fmt.Fprintf(w, "  %sslaves%s  %d\n", c(colorDim), c(colorReset), *st.SlaveBots)
	} else {
		fmt.Fprintf(w, "  %sslaves%s  unknown\n", c(colorDim), c(colorReset))
	}
	if st.LastEvent != nil {
		e := st.LastEvent
		tone := colorGreen
		if e.Outcome != history.OutcomeOK {
			tone = colorYellow
		}
		fmt.Fprintf(w, "  %slast%s    %s %s%s%s", c(colorDim), c(colorReset),
			e.OccurredAt.Format("2006-01-02 15:04:05"), c(tone), e.Flow+" "+e.Outcome, c(colorReset))
		if e.Detail != "" {
			fmt.Fprintf(w, "  %s%s%s", c(colorDim), e.Detail, c(colorReset))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}

func presence(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
