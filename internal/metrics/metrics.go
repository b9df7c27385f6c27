// Package metrics publishes supervision state for the node_exporter textfile
// collector. Each invocation rebuilds the snapshot and atomically replaces
// the .prom file; the invocation counter survives across runs by re-reading
// the previous snapshot. A nil *Exporter is a valid no-op receiver.
package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "botsup"

// Exporter owns the collectors behind one snapshot file.
type Exporter struct {
	path string
	reg  *prometheus.Registry

	workerUp    prometheus.Gauge
	workerPID   prometheus.Gauge
	slaveBots   prometheus.Gauge
	lastAction  prometheus.Gauge
	invocations *prometheus.CounterVec
}

// New builds an exporter for path and seeds counters from any previous
// snapshot. A missing or unreadable previous snapshot resets the counters.
func New(path string) *Exporter {
	reg := prometheus.NewRegistry()
	e := &Exporter{
		path: path,
		reg:  reg,
		workerUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "up",
			Help:      "Whether the supervised worker is running (1) or not (0).",
		}),
		workerPID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "pid",
			Help:      "Process id of the running worker, 0 when not running.",
		}),
		slaveBots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slave_bots",
			Help:      "Bot count read from the worker data file, -1 when unknown.",
		}),
		lastAction: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_action_timestamp_seconds",
			Help:      "Unix time of the last supervision action.",
		}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Supervisor invocations by flow and outcome.",
		}, []string{"flow", "outcome"}),
	}
	reg.MustRegister(e.workerUp, e.workerPID, e.slaveBots, e.lastAction, e.invocations)
	e.seed()
	return e
}

// seed restores counter state from the previous snapshot file.
func (e *Exporter) seed() {
	f, err := os.Open(e.path)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(f)
	if err != nil {
		return
	}
	fam, ok := families[namespace+"_invocations_total"]
	if !ok {
		return
	}
	for _, m := range fam.GetMetric() {
		var flow, outcome string
		for _, lp := range m.GetLabel() {
			switch lp.GetName() {
			case "flow":
				flow = lp.GetValue()
			case "outcome":
				outcome = lp.GetValue()
			}
		}
		if flow == "" || outcome == "" {
			continue
		}
		e.invocations.WithLabelValues(flow, outcome).Add(m.GetCounter().GetValue())
	}
}

func (e *Exporter) SetWorkerUp(up bool) {
	if e == nil {
		return
	}
	v := 0.0
	if up {
		v = 1.0
	}
	e.workerUp.Set(v)
}

func (e *Exporter) SetWorkerPID(pid int) {
	if e == nil {
		return
	}
	e.workerPID.Set(float64(pid))
}

// SetSlaveBots records the opportunistic bot count; known=false writes -1.
func (e *Exporter) SetSlaveBots(n int, known bool) {
	if e == nil {
		return
	}
	if !known {
		e.slaveBots.Set(-1)
		return
	}
	e.slaveBots.Set(float64(n))
}

func (e *Exporter) SetLastAction(t time.Time) {
	if e == nil {
		return
	}
	e.lastAction.Set(float64(t.Unix()))
}

func (e *Exporter) IncInvocation(flow, outcome string) {
	if e == nil {
		return
	}
	e.invocations.WithLabelValues(flow, outcome).Inc()
}

// Write renders the snapshot and replaces the file atomically, so a scraping
// collector never sees a half-written snapshot.
func (e *Exporter) Write() error {
	if e == nil {
		return nil
	}
	families, err := e.reg.Gather()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, fam := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, fam); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(e.path), 0o750); err != nil {
		return err
	}
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, e.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
