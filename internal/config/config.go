package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/loykin/botsup/internal/logger"
	"github.com/spf13/viper"
)

// Defaults for the supervised worker and the supervision protocol.
const (
	DefaultBranch       = "main"
	DefaultPython       = "python3"
	DefaultEntry        = "main.py"
	DefaultRequirements = "requirements.txt"
	DefaultEnvFile      = ".env"
	DefaultDataFile     = "slaves_database.json"
	DefaultFontFile     = "Roboto.ttf"
	DefaultFontURL      = "https://github.com/openmaptiles/fonts/raw/master/roboto/Roboto-Regular.ttf"

	DefaultSettleDelay  = 2 * time.Second
	DefaultStopAttempts = 10
	DefaultStopInterval = 500 * time.Millisecond
	DefaultRestartPause = time.Second
)

var defaultRequiredEnv = []string{"MASTER_BOT_TOKEN", "MASTER_PASSWORD"}

// FileConfig represents the top-level TOML structure (botsup.toml).
type FileConfig struct {
	Project   ProjectConfig   `toml:"project" mapstructure:"project"`
	Runtime   RuntimeConfig   `toml:"runtime" mapstructure:"runtime"`
	Worker    WorkerConfig    `toml:"worker" mapstructure:"worker"`
	Supervise SuperviseConfig `toml:"supervise" mapstructure:"supervise"`
	Log       LogConfig       `toml:"log" mapstructure:"log"`
	History   HistoryConfig   `toml:"history" mapstructure:"history"`
	Metrics   MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
}

type ProjectConfig struct {
	RepoURL string `toml:"repo_url" mapstructure:"repo_url"`
	Branch  string `toml:"branch" mapstructure:"branch"`
	Workdir string `toml:"workdir" mapstructure:"workdir"`
}

type RuntimeConfig struct {
	Python       string `toml:"python" mapstructure:"python"`
	Venv         string `toml:"venv" mapstructure:"venv"`
	Entry        string `toml:"entry" mapstructure:"entry"`
	Requirements string `toml:"requirements" mapstructure:"requirements"`
}

type WorkerConfig struct {
	EnvFile     string   `toml:"env_file" mapstructure:"env_file"`
	RequiredEnv []string `toml:"required_env" mapstructure:"required_env"`
	// Env holds extra KEY=value pairs for the worker process. A list, not a
	// table: viper lowercases table keys, which would mangle variable names.
	Env      []string `toml:"env" mapstructure:"env"`
	DataFile string   `toml:"data_file" mapstructure:"data_file"`
	FontFile string   `toml:"font_file" mapstructure:"font_file"`
	FontURL  string   `toml:"font_url" mapstructure:"font_url"`
}

type SuperviseConfig struct {
	PIDFile      string        `toml:"pidfile" mapstructure:"pidfile"`
	WorkerLog    string        `toml:"worker_log" mapstructure:"worker_log"`
	SettleDelay  time.Duration `toml:"settle_delay" mapstructure:"settle_delay"`
	StopAttempts int           `toml:"stop_attempts" mapstructure:"stop_attempts"`
	StopInterval time.Duration `toml:"stop_interval" mapstructure:"stop_interval"`
	RestartPause time.Duration `toml:"restart_pause" mapstructure:"restart_pause"`
}

type LogConfig struct {
	Path       string `toml:"path" mapstructure:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type HistoryConfig struct {
	Path string `toml:"path" mapstructure:"path"`
}

type MetricsConfig struct {
	Textfile string `toml:"textfile" mapstructure:"textfile"`
}

// Settings is the fully resolved configuration handed to every component.
// All paths are absolute; worker-side paths are resolved against the working
// copy, supervisor-side paths against the base directory.
type Settings struct {
	BaseDir string
	RepoURL string
	Branch  string

	WorkDir      string
	VenvDir      string
	Python       string
	Entry        string
	Requirements string

	EnvFile     string
	RequiredEnv []string
	WorkerEnv   []string
	DataFile    string
	FontFile    string
	FontURL     string

	PIDFile   string
	WorkerLog string

	SettleDelay  time.Duration
	StopAttempts int
	StopInterval time.Duration
	RestartPause time.Duration

	Log         logger.FileConfig
	HistoryPath string
	MetricsPath string
}

// Load reads botsup.toml (an explicit path, or <baseDir>/botsup.toml when one
// exists) and resolves it against baseDir. A missing implicit config file is
// not an error; every value has a default. Environment variables with the
// BOTSUP_ prefix override file values (e.g. BOTSUP_PROJECT_REPO_URL).
func Load(path string, baseDir string) (Settings, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)
	v.SetEnvPrefix("BOTSUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("botsup")
		v.AddConfigPath(baseDir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Settings{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return Settings{}, fmt.Errorf("parse config: %w", err)
	}
	return fc.Resolve(baseDir)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("project.branch", DefaultBranch)
	v.SetDefault("project.workdir", "app")
	v.SetDefault("runtime.python", DefaultPython)
	v.SetDefault("runtime.venv", "venv")
	v.SetDefault("runtime.entry", DefaultEntry)
	v.SetDefault("runtime.requirements", DefaultRequirements)
	v.SetDefault("worker.env_file", DefaultEnvFile)
	v.SetDefault("worker.required_env", defaultRequiredEnv)
	v.SetDefault("worker.data_file", DefaultDataFile)
	v.SetDefault("worker.font_file", DefaultFontFile)
	v.SetDefault("worker.font_url", DefaultFontURL)
	v.SetDefault("supervise.pidfile", "bot.pid")
	v.SetDefault("supervise.worker_log", "bot.log")
	v.SetDefault("supervise.settle_delay", DefaultSettleDelay.String())
	v.SetDefault("supervise.stop_attempts", DefaultStopAttempts)
	v.SetDefault("supervise.stop_interval", DefaultStopInterval.String())
	v.SetDefault("supervise.restart_pause", DefaultRestartPause.String())
	v.SetDefault("log.path", "botsup.log")
	v.SetDefault("history.path", "botsup.db")
	v.SetDefault("metrics.textfile", "botsup.prom")
}

// Resolve turns the raw file values into absolute-path Settings.
func (fc FileConfig) Resolve(baseDir string) (Settings, error) {
	base, err := filepath.Abs(baseDir)
	if err != nil {
		return Settings{}, fmt.Errorf("resolve base dir: %w", err)
	}
	work := joinIfRelative(base, valOr(fc.Project.Workdir, "app"))
	s := Settings{
		BaseDir: base,
		RepoURL: fc.Project.RepoURL,
		Branch:  valOr(fc.Project.Branch, DefaultBranch),

		WorkDir:      work,
		VenvDir:      joinIfRelative(base, valOr(fc.Runtime.Venv, "venv")),
		Python:       valOr(fc.Runtime.Python, DefaultPython),
		Entry:        valOr(fc.Runtime.Entry, DefaultEntry),
		Requirements: valOr(fc.Runtime.Requirements, DefaultRequirements),

		EnvFile:     joinIfRelative(work, valOr(fc.Worker.EnvFile, DefaultEnvFile)),
		RequiredEnv: fc.Worker.RequiredEnv,
		WorkerEnv:   fc.Worker.Env,
		DataFile:    joinIfRelative(work, valOr(fc.Worker.DataFile, DefaultDataFile)),
		FontFile:    joinIfRelative(work, valOr(fc.Worker.FontFile, DefaultFontFile)),
		FontURL:     valOr(fc.Worker.FontURL, DefaultFontURL),

		PIDFile:   joinIfRelative(base, valOr(fc.Supervise.PIDFile, "bot.pid")),
		WorkerLog: joinIfRelative(base, valOr(fc.Supervise.WorkerLog, "bot.log")),

		SettleDelay:  durOr(fc.Supervise.SettleDelay, DefaultSettleDelay),
		StopAttempts: intOr(fc.Supervise.StopAttempts, DefaultStopAttempts),
		StopInterval: durOr(fc.Supervise.StopInterval, DefaultStopInterval),
		RestartPause: durOr(fc.Supervise.RestartPause, DefaultRestartPause),

		Log: logger.FileConfig{
			Path:       joinIfRelative(base, valOr(fc.Log.Path, "botsup.log")),
			MaxSizeMB:  fc.Log.MaxSizeMB,
			MaxBackups: fc.Log.MaxBackups,
			MaxAgeDays: fc.Log.MaxAgeDays,
			Compress:   fc.Log.Compress,
		},
		HistoryPath: joinIfRelative(base, valOr(fc.History.Path, "botsup.db")),
		MetricsPath: joinIfRelative(base, valOr(fc.Metrics.Textfile, "botsup.prom")),
	}
	if len(s.RequiredEnv) == 0 {
		s.RequiredEnv = append([]string(nil), defaultRequiredEnv...)
	}
	return s, nil
}

// VenvPython returns the interpreter inside the virtualenv.
func (s Settings) VenvPython() string {
	return filepath.Join(s.VenvDir, "bin", "python")
}

// VenvPip returns the pip binary inside the virtualenv.
func (s Settings) VenvPip() string {
	return filepath.Join(s.VenvDir, "bin", "pip")
}

// EntryPath returns the worker entry point inside the working copy.
func (s Settings) EntryPath() string {
	return joinIfRelative(s.WorkDir, s.Entry)
}

// RequirementsPath returns the dependency manifest inside the working copy.
func (s Settings) RequirementsPath() string {
	return joinIfRelative(s.WorkDir, s.Requirements)
}

// ErrMissingConfig marks a required worker configuration item as absent.
var ErrMissingConfig = errors.New("missing worker configuration")

// MissingConfigError names the missing item and tells the operator what shape
// is expected.
type MissingConfigError struct {
	Item string
	Hint string
}

func (e *MissingConfigError) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("missing worker configuration: %s", e.Item)
	}
	return fmt.Sprintf("missing worker configuration: %s (%s)", e.Item, e.Hint)
}

func (e *MissingConfigError) Unwrap() error { return ErrMissingConfig }

// ValidateWorker checks the worker's own configuration before any
// process-affecting action: the env file must exist and every required key
// must have a non-empty value.
func (s Settings) ValidateWorker() error {
	vals, err := godotenv.Read(s.EnvFile)
	if err != nil {
		if os.IsNotExist(err) {
			return &MissingConfigError{
				Item: filepath.Base(s.EnvFile),
				Hint: fmt.Sprintf("create %s with %s", s.EnvFile, strings.Join(keyShapes(s.RequiredEnv), " and ")),
			}
		}
		return fmt.Errorf("read %s: %w", s.EnvFile, err)
	}
	for _, k := range s.RequiredEnv {
		if strings.TrimSpace(vals[k]) == "" {
			return &MissingConfigError{
				Item: k,
				Hint: fmt.Sprintf("add %s=<value> to %s", k, s.EnvFile),
			}
		}
	}
	return nil
}

// EnvFilePresent reports whether the worker env file exists, without
// validating its contents.
func (s Settings) EnvFilePresent() bool {
	_, err := os.Stat(s.EnvFile)
	return err == nil
}

func keyShapes(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"=<value>")
	}
	return out
}

func joinIfRelative(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func valOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func durOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
