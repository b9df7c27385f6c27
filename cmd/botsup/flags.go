package main

// Flag structs to decouple cobra from the flow logic for testing.

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string // explicit botsup.toml path, empty means <dir>/botsup.toml
	BaseDir    string // supervision state directory
	Verbose    bool
	NoColor    bool
}

// StatusFlags holds status-specific flags.
type StatusFlags struct {
	JSON bool
}

// LogsFlags holds log-inspection flags.
type LogsFlags struct {
	Lines int
}

// ReinstallFlags holds reinstall-specific flags.
type ReinstallFlags struct {
	Yes bool // skip the interactive confirmation
}

// InitFlags holds starter-file generation flags.
type InitFlags struct {
	Kind     string
	RepoURL  string
	Branch   string
	Schedule string
	Output   string
	Force    bool
}
