// Package template generates starter files for a new botsup host: the
// supervisor configuration, the worker credential skeleton, and scheduler
// snippets for unattended operation.
package template

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	texttemplate "text/template"
)

// Kind selects which starter file to generate.
type Kind string

const (
	KindConfig  Kind = "config"
	KindEnv     Kind = "env"
	KindCron    Kind = "cron"
	KindSystemd Kind = "systemd"
)

// Params feeds the generated files. Zero fields fall back to the defaults
// recorded in each template.
type Params struct {
	BaseDir     string
	RepoURL     string
	Branch      string
	RequiredEnv []string
	// Schedule is the cron cadence for unattended runs.
	Schedule string
	// Binary is the absolute path of the botsup executable in snippets.
	Binary string
}

func (p Params) withDefaults() Params {
	if p.BaseDir == "" {
		p.BaseDir = "/opt/botsup"
	}
	if p.RepoURL == "" {
		p.RepoURL = "https://example.com/watermark-bot.git"
	}
	if p.Branch == "" {
		p.Branch = "main"
	}
	if len(p.RequiredEnv) == 0 {
		p.RequiredEnv = []string{"MASTER_BOT_TOKEN", "MASTER_PASSWORD"}
	}
	if p.Schedule == "" {
		p.Schedule = "*/5 * * * *"
	}
	if p.Binary == "" {
		p.Binary = "/usr/local/bin/botsup"
	}
	return p
}

const configTemplate = `# botsup supervisor configuration.
# Relative paths resolve against the directory this file lives in.

[project]
repo_url = "{{.RepoURL}}"
branch = "{{.Branch}}"
# Working copy of the worker source, cloned on first run.
workdir = "app"

[runtime]
python = "python3"
venv = "venv"
entry = "main.py"
requirements = "requirements.txt"

[worker]
env_file = ".env"
required_env = [{{range $i, $k := .RequiredEnv}}{{if $i}}, {{end}}"{{$k}}"{{end}}]
# Extra KEY=value pairs for the worker process.
# env = ["HTTPS_PROXY=http://proxy:3128"]
data_file = "slaves_database.json"
font_file = "Roboto.ttf"

[supervise]
pidfile = "bot.pid"
worker_log = "bot.log"
settle_delay = "2s"
stop_attempts = 10
stop_interval = "500ms"
restart_pause = "1s"

[log]
path = "botsup.log"

[history]
path = "botsup.db"

[metrics]
textfile = "botsup.prom"
`

const envTemplate = `# Worker credentials, read by the bot at startup.
# Keep this file out of version control.
{{range .RequiredEnv}}{{.}}=
{{end}}`

const cronTemplate = `# Unattended supervision: each run syncs the source, provisions the
# environment and (re)starts the worker only when needed.
{{.Schedule}} {{.Binary}} --dir {{.BaseDir}} --no-color >> {{.BaseDir}}/cron.log 2>&1
`

const systemdTemplate = `# Oneshot unit for timer-driven supervision. Pair it with a .timer unit
# (OnUnitActiveSec=5min) or trigger it from cron.
[Unit]
Description=Update-aware supervisor pass for the bot worker
After=network-online.target

[Service]
Type=oneshot
ExecStart={{.Binary}} --dir {{.BaseDir}} --no-color
WorkingDirectory={{.BaseDir}}

[Install]
WantedBy=multi-user.target
`

var templates = map[Kind]*texttemplate.Template{
	KindConfig:  texttemplate.Must(texttemplate.New(string(KindConfig)).Parse(configTemplate)),
	KindEnv:     texttemplate.Must(texttemplate.New(string(KindEnv)).Parse(envTemplate)),
	KindCron:    texttemplate.Must(texttemplate.New(string(KindCron)).Parse(cronTemplate)),
	KindSystemd: texttemplate.Must(texttemplate.New(string(KindSystemd)).Parse(systemdTemplate)),
}

// Render produces the starter file for the given kind.
func Render(k Kind, p Params) ([]byte, error) {
	tpl, ok := templates[k]
	if !ok {
		return nil, fmt.Errorf("unknown template kind %q (supported: %s)", k, strings.Join(Kinds(), ", "))
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, p.withDefaults()); err != nil {
		return nil, fmt.Errorf("render %s template: %w", k, err)
	}
	return buf.Bytes(), nil
}

// FileName returns the conventional name for a rendered file.
func FileName(k Kind) string {
	switch k {
	case KindConfig:
		return "botsup.toml"
	case KindEnv:
		return ".env.example"
	case KindCron:
		return "botsup.cron"
	case KindSystemd:
		return "botsup.service"
	default:
		return string(k) + ".txt"
	}
}

// Kinds lists the supported template kinds, sorted.
func Kinds() []string {
	out := make([]string, 0, len(templates))
	for k := range templates {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
