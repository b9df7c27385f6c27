package botsup

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func testSettings(t *testing.T) Settings {
	t.Helper()
	dir := t.TempDir()
	toml := `
[project]
repo_url = "https://example.invalid/watermark-bot.git"
`
	if err := os.WriteFile(filepath.Join(dir, "botsup.toml"), []byte(toml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	s, err := LoadSettings("", dir)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	return s
}

func TestDecideFacade(t *testing.T) {
	if got := Decide(false, Unchanged); got != ActionStart {
		t.Fatalf("dead worker: got %v", got)
	}
	if got := Decide(true, Unchanged); got != ActionNone {
		t.Fatalf("steady state: got %v", got)
	}
	if got := Decide(true, Updated); got != ActionRestart {
		t.Fatalf("new revision: got %v", got)
	}
	if got := Decide(true, NewlyInstalled); got != ActionRestart {
		t.Fatalf("fresh clone: got %v", got)
	}
}

func TestLoadSettingsResolvesAgainstBaseDir(t *testing.T) {
	s := testSettings(t)
	if !filepath.IsAbs(s.WorkDir) {
		t.Fatalf("work dir not absolute: %q", s.WorkDir)
	}
	if s.RepoURL != "https://example.invalid/watermark-bot.git" {
		t.Fatalf("repo url: %q", s.RepoURL)
	}
	if !strings.HasPrefix(s.PIDFile, s.BaseDir) {
		t.Fatalf("pid file %q escapes base dir %q", s.PIDFile, s.BaseDir)
	}
}

func TestSupervisorFacadeStatusAndStop(t *testing.T) {
	requireUnix(t)
	sv := New(testSettings(t), nil)
	ctx := context.Background()

	st := sv.Status(ctx)
	if st.Running {
		t.Fatalf("nothing launched, yet running: %+v", st)
	}
	if st.Installed || st.VenvReady {
		t.Fatalf("fresh base dir reports installed state: %+v", st)
	}

	out, err := sv.Stop(ctx)
	if err != nil {
		t.Fatalf("stop without worker: %v", err)
	}
	if out.Stop != StopNotRunning {
		t.Fatalf("expected no-op stop, got %v", out.Stop)
	}
}

func TestPreflightFacadeFlagsMissingInterpreter(t *testing.T) {
	s := testSettings(t)
	s.Python = filepath.Join(t.TempDir(), "no-such-python")
	res := Preflight(s)
	if res.Passed {
		t.Fatalf("expected failure with missing interpreter")
	}
	if err := res.Err(); err == nil || !strings.Contains(err.Error(), "python") {
		t.Fatalf("expected python named in error, got %v", err)
	}
}
