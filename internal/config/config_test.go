package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Load("", dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.BaseDir != dir {
		t.Fatalf("base dir: got %s want %s", s.BaseDir, dir)
	}
	if s.WorkDir != filepath.Join(dir, "app") {
		t.Fatalf("workdir: %s", s.WorkDir)
	}
	if s.Branch != "main" || s.Python != "python3" || s.Entry != "main.py" {
		t.Fatalf("unexpected runtime defaults: %+v", s)
	}
	if s.PIDFile != filepath.Join(dir, "bot.pid") || s.WorkerLog != filepath.Join(dir, "bot.log") {
		t.Fatalf("unexpected supervise paths: pid=%s log=%s", s.PIDFile, s.WorkerLog)
	}
	if s.SettleDelay != 2*time.Second || s.StopAttempts != 10 || s.StopInterval != 500*time.Millisecond {
		t.Fatalf("unexpected timings: %+v", s)
	}
	if len(s.RequiredEnv) != 2 || s.RequiredEnv[0] != "MASTER_BOT_TOKEN" || s.RequiredEnv[1] != "MASTER_PASSWORD" {
		t.Fatalf("unexpected required env: %v", s.RequiredEnv)
	}
	if s.EnvFile != filepath.Join(s.WorkDir, ".env") || s.DataFile != filepath.Join(s.WorkDir, "slaves_database.json") {
		t.Fatalf("unexpected worker paths: env=%s data=%s", s.EnvFile, s.DataFile)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "botsup.toml")
	data := `
[project]
repo_url = "https://example.com/bot.git"
branch = "release"
workdir = "src"

[runtime]
python = "python3.12"
venv = "/opt/venv"

[supervise]
pidfile = "run/bot.pid"
settle_delay = "3s"
stop_attempts = 4
stop_interval = "250ms"

[worker]
required_env = ["TOKEN"]
env = ["HTTPS_PROXY=http://proxy:3128"]

[log]
max_size_mb = 5
compress = true
`
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	s, err := Load(file, dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.RepoURL != "https://example.com/bot.git" || s.Branch != "release" {
		t.Fatalf("unexpected project: %+v", s)
	}
	if s.WorkDir != filepath.Join(dir, "src") {
		t.Fatalf("workdir: %s", s.WorkDir)
	}
	if s.VenvDir != "/opt/venv" {
		t.Fatalf("absolute venv not preserved: %s", s.VenvDir)
	}
	if s.Python != "python3.12" {
		t.Fatalf("python: %s", s.Python)
	}
	if s.PIDFile != filepath.Join(dir, "run/bot.pid") {
		t.Fatalf("pidfile: %s", s.PIDFile)
	}
	if s.SettleDelay != 3*time.Second || s.StopAttempts != 4 || s.StopInterval != 250*time.Millisecond {
		t.Fatalf("unexpected timings: %+v", s)
	}
	if len(s.RequiredEnv) != 1 || s.RequiredEnv[0] != "TOKEN" {
		t.Fatalf("required env: %v", s.RequiredEnv)
	}
	if len(s.WorkerEnv) != 1 || s.WorkerEnv[0] != "HTTPS_PROXY=http://proxy:3128" {
		t.Fatalf("worker env: %v", s.WorkerEnv)
	}
	if s.Log.MaxSizeMB != 5 || !s.Log.Compress {
		t.Fatalf("log config: %+v", s.Log)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "nope.toml"), dir); err == nil {
		t.Fatalf("expected error for explicit missing config file")
	}
}

func TestVenvPaths(t *testing.T) {
	s := Settings{VenvDir: "/base/venv", WorkDir: "/base/app", Entry: "main.py", Requirements: "requirements.txt"}
	if s.VenvPython() != "/base/venv/bin/python" {
		t.Fatalf("venv python: %s", s.VenvPython())
	}
	if s.VenvPip() != "/base/venv/bin/pip" {
		t.Fatalf("venv pip: %s", s.VenvPip())
	}
	if s.EntryPath() != "/base/app/main.py" {
		t.Fatalf("entry: %s", s.EntryPath())
	}
	if s.RequirementsPath() != "/base/app/requirements.txt" {
		t.Fatalf("requirements: %s", s.RequirementsPath())
	}
}

func TestValidateWorker_MissingFile(t *testing.T) {
	dir := t.TempDir()
	s := Settings{EnvFile: filepath.Join(dir, ".env"), RequiredEnv: []string{"MASTER_BOT_TOKEN"}}
	err := s.ValidateWorker()
	if err == nil {
		t.Fatalf("expected error for absent env file")
	}
	if !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig, got %v", err)
	}
	var mc *MissingConfigError
	if !errors.As(err, &mc) || mc.Item != ".env" {
		t.Fatalf("expected item .env, got %+v", mc)
	}
}

func TestValidateWorker_MissingKey(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	if err := os.WriteFile(env, []byte("MASTER_BOT_TOKEN=abc\nMASTER_PASSWORD=\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	s := Settings{EnvFile: env, RequiredEnv: []string{"MASTER_BOT_TOKEN", "MASTER_PASSWORD"}}
	err := s.ValidateWorker()
	var mc *MissingConfigError
	if !errors.As(err, &mc) {
		t.Fatalf("expected MissingConfigError, got %v", err)
	}
	if mc.Item != "MASTER_PASSWORD" {
		t.Fatalf("expected MASTER_PASSWORD named, got %s", mc.Item)
	}
	if mc.Hint == "" {
		t.Fatalf("expected a hint naming the env file")
	}
}

func TestValidateWorker_OK(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	data := "# bot credentials\nMASTER_BOT_TOKEN=123:abc\nMASTER_PASSWORD=s3cret\n"
	if err := os.WriteFile(env, []byte(data), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	s := Settings{EnvFile: env, RequiredEnv: []string{"MASTER_BOT_TOKEN", "MASTER_PASSWORD"}}
	if err := s.ValidateWorker(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !s.EnvFilePresent() {
		t.Fatalf("EnvFilePresent should be true")
	}
}
