package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loykin/botsup/internal/config"
	"github.com/loykin/botsup/internal/history"
	"github.com/loykin/botsup/internal/record"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	base := t.TempDir()
	work := filepath.Join(base, "app")
	return config.Settings{
		BaseDir:   base,
		WorkDir:   work,
		VenvDir:   filepath.Join(base, "venv"),
		EnvFile:   filepath.Join(work, ".env"),
		DataFile:  filepath.Join(work, "slaves_database.json"),
		FontFile:  filepath.Join(work, "Roboto.ttf"),
		PIDFile:   filepath.Join(base, "bot.pid"),
		WorkerLog: filepath.Join(base, "bot.log"),
	}
}

func TestGather_NothingInstalled(t *testing.T) {
	s := testSettings(t)
	r := New(s, discardLogger(), nil)

	st := r.Gather(context.Background())
	if st.Running || st.PID != 0 {
		t.Fatalf("fresh host must not report a worker: %+v", st)
	}
	if st.Installed || st.VenvReady || st.EnvPresent || st.FontPresent {
		t.Fatalf("fresh host must report everything absent: %+v", st)
	}
	if st.SlaveBots != nil {
		t.Fatalf("slave count must be unknown, got %d", *st.SlaveBots)
	}
	if st.WorkerLog != s.WorkerLog {
		t.Fatalf("worker log path = %q", st.WorkerLog)
	}
}

func TestGather_RunningWorker(t *testing.T) {
	s := testSettings(t)
	pid := os.Getpid()
	start := record.CurrentStartUnix(pid)
	if start <= 0 {
		t.Skip("cannot fingerprint the current process on this platform")
	}
	if err := record.New(s.PIDFile).Write(record.Record{PID: pid, StartUnix: start}); err != nil {
		t.Fatalf("write record: %v", err)
	}

	st := New(s, discardLogger(), nil).Gather(context.Background())
	if !st.Running || st.PID != pid {
		t.Fatalf("expected running pid %d, got %+v", pid, st)
	}
	if st.StartedAt.IsZero() {
		t.Fatal("StartedAt should be set for a running worker")
	}
}

func TestGather_SlaveCount(t *testing.T) {
	s := testSettings(t)
	if err := os.MkdirAll(s.WorkDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(s.DataFile, []byte(`[{"token":"a"},{"token":"b"},{"token":"c"}]`), 0o644); err != nil {
		t.Fatalf("write data file: %v", err)
	}

	st := New(s, discardLogger(), nil).Gather(context.Background())
	if st.SlaveBots == nil || *st.SlaveBots != 3 {
		t.Fatalf("slave count = %v, want 3", st.SlaveBots)
	}
}

func TestGather_CorruptDataFileIsUnknown(t *testing.T) {
	s := testSettings(t)
	if err := os.MkdirAll(s.WorkDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(s.DataFile, []byte(`{"not":"an array"`), 0o644); err != nil {
		t.Fatalf("write data file: %v", err)
	}

	st := New(s, discardLogger(), nil).Gather(context.Background())
	if st.SlaveBots != nil {
		t.Fatalf("corrupt data file must yield unknown, got %d", *st.SlaveBots)
	}
}

func TestGather_IncludesLastEvent(t *testing.T) {
	s := testSettings(t)
	hist, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer func() { _ = hist.Close() }()
	if err := hist.Append(context.Background(), history.Event{Flow: "run", Outcome: history.OutcomeOK, PID: 99}); err != nil {
		t.Fatalf("append: %v", err)
	}

	st := New(s, discardLogger(), hist).Gather(context.Background())
	if st.LastEvent == nil || st.LastEvent.Flow != "run" || st.LastEvent.PID != 99 {
		t.Fatalf("last event = %+v", st.LastEvent)
	}
}

func TestRender_PlainHasNoEscapes(t *testing.T) {
	var buf bytes.Buffer
	two := 2
	Render(&buf, Status{
		Running:   true,
		PID:       1234,
		WorkerLog: "/srv/bot.log",
		SlaveBots: &two,
	}, false)
	out := buf.String()
	if strings.Contains(out, "\033[") {
		t.Fatalf("plain render must not contain escapes:\n%q", out)
	}
	for _, want := range []string{"running", "1234", "/srv/bot.log", "slaves  2"} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestRender_ColorAndStoppedState(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, Status{Running: false, WorkerLog: "/srv/bot.log"}, true)
	out := buf.String()
	if !strings.Contains(out, colorRed) {
		t.Fatal("stopped worker should render red")
	}
	if !strings.Contains(out, "not running") {
		t.Fatalf("missing state line:\n%s", out)
	}
	if !strings.Contains(out, "slaves  unknown") {
		t.Fatalf("missing unknown slave count:\n%s", out)
	}
}

func TestTailLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	var content strings.Builder
	for i := 1; i <= 120; i++ {
		fmt.Fprintf(&content, "line %d\n", i)
	}
	if err := os.WriteFile(path, []byte(content.String()), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	var buf bytes.Buffer
	if err := TailLines(path, 50, &buf); err != nil {
		t.Fatalf("tail: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 50 {
		t.Fatalf("got %d lines, want 50", len(lines))
	}
	if lines[0] != "line 71" || lines[49] != "line 120" {
		t.Fatalf("window = %q .. %q", lines[0], lines[49])
	}
}

func TestTailLines_ShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	if err := os.WriteFile(path, []byte("only\ntwo\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	var buf bytes.Buffer
	if err := TailLines(path, 50, &buf); err != nil {
		t.Fatalf("tail: %v", err)
	}
	if got := buf.String(); got != "only\ntwo\n" {
		t.Fatalf("short file should print fully, got %q", got)
	}
}

func TestTailLines_MissingFile(t *testing.T) {
	err := TailLines(filepath.Join(t.TempDir(), "absent.log"), 50, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected a friendly missing-file error, got %v", err)
	}
}

func TestTailLines_RejectsNonPositiveCount(t *testing.T) {
	if err := TailLines("/dev/null", 0, io.Discard); err == nil {
		t.Fatal("expected an error for n=0")
	}
}
