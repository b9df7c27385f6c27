package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		if errors.Is(err, errWorkerNotRunning) {
			// Status already rendered the state; only the exit code changes.
			os.Exit(exitNotRunning)
		}
		_, _ = fmt.Fprintln(os.Stderr, "botsup:", err)
		os.Exit(exitError)
	}
}

// buildRoot creates the root command with all operator flows attached.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	statusFlags := &StatusFlags{}
	logsFlags := &LogsFlags{}
	reinstallFlags := &ReinstallFlags{}
	initFlags := &InitFlags{}

	botsupCommand := command{g: globalFlags}

	root := createRootCommand(botsupCommand, globalFlags)

	root.AddCommand(
		createStartCommand(botsupCommand),
		createStopCommand(botsupCommand),
		createRestartCommand(botsupCommand),
		createStatusCommand(botsupCommand, statusFlags),
		createLogsCommand(botsupCommand, logsFlags),
		createUpdateCommand(botsupCommand),
		createInstallCommand(botsupCommand),
		createReinstallCommand(botsupCommand, reinstallFlags),
		createInitCommand(botsupCommand, initFlags),
	)

	return root
}

// createRootCommand creates the root command. Running it without a
// subcommand is the default update-aware flow.
func createRootCommand(botsupCommand command, flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "botsup",
		Short: "Update-aware supervisor for the watermark bot worker",
		Long: `Botsup operates one long-running bot worker on this host: it pulls
upstream code updates, provisions the Python virtualenv, validates the worker
configuration, and supervises the process through a PID-file protocol.

Running botsup without a subcommand performs the full decision flow: sync,
provision, validate, then start the worker if it is down or restart it if an
update arrived. Repeating the invocation is always safe.

Examples:
  botsup                      # sync + provision + start or restart as needed
  botsup status               # exit 0 when running, 3 when not
  botsup logs -n 100          # last 100 worker log lines
  botsup update               # force stop + refresh + start
  botsup --dir /srv/bot       # supervise state under /srv/bot`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return botsupCommand.Run()
		},
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to botsup.toml (default <dir>/botsup.toml)")
	root.PersistentFlags().StringVar(&flags.BaseDir, "dir", ".", "supervision state directory")
	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&flags.NoColor, "no-color", false, "disable colored output")

	return root
}

func createStartCommand(botsupCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Provision and launch the worker",
		Long: `Sync the source, provision the virtualenv, validate the configuration
and launch the worker. A worker that is already running is left alone.

Examples:
  botsup start
  botsup start --dir /srv/bot`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return botsupCommand.Start()
		},
	}
}

func createStopCommand(botsupCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the worker",
		Long: `Ask the worker to terminate gracefully, escalating to a forced kill
after the poll window. Stopping an already-stopped worker is a no-op.

Examples:
  botsup stop`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return botsupCommand.Stop()
		},
	}
}

func createRestartCommand(botsupCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Provision and restart the worker unconditionally",
		Long: `Sync, provision, validate, then stop and relaunch the worker even when
no update arrived.

Examples:
  botsup restart`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return botsupCommand.Restart()
		},
	}
}

func createStatusCommand(botsupCommand command, statusFlags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report worker and environment state",
		Long: `Read-only snapshot: liveness, pid, uptime, log location, environment
readiness and the bot count from the worker's data file. The exit code is 0
when the worker runs and 3 when it does not, for scripting.

Examples:
  botsup status
  botsup status --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return botsupCommand.Status(StatusFlags{JSON: statusFlags.JSON})
		},
	}

	cmd.Flags().BoolVar(&statusFlags.JSON, "json", false, "machine-readable output")

	return cmd
}

func createLogsCommand(botsupCommand command, logsFlags *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the tail of the worker log",
		Long: `Print the most recent worker log lines. The worker may keep appending
while this reads; that is fine for inspection.

Examples:
  botsup logs
  botsup logs -n 200`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return botsupCommand.Logs(LogsFlags{Lines: logsFlags.Lines})
		},
	}

	cmd.Flags().IntVarP(&logsFlags.Lines, "lines", "n", 50, "number of lines to print")

	return cmd
}

func createUpdateCommand(botsupCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Stop, refresh and relaunch the worker",
		Long: `Force the refresh path regardless of change detection: stop the worker,
sync the source, re-provision the virtualenv, validate, then start.

Examples:
  botsup update`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return botsupCommand.Update()
		},
	}
}

func createInstallCommand(botsupCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Prepare everything without launching the worker",
		Long: `Clone the source when absent, build the virtualenv, install the
dependency manifest, fetch the font asset and validate the configuration.
The worker process is not touched.

Examples:
  botsup install`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return botsupCommand.Install()
		},
	}
}

func createInitCommand(botsupCommand command, initFlags *InitFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write starter files for a new host",
		Long: `Generate a starter file in the state directory: the supervisor
configuration, the worker credential skeleton, or a scheduler snippet for
unattended runs.

Supported kinds: config, env, cron, systemd.

Examples:
  botsup init --repo https://example.com/bot.git
  botsup init --kind env
  botsup init --kind cron --schedule '*/10 * * * *'
  botsup init --kind config --output /tmp/botsup.toml --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return botsupCommand.Init(InitFlags{
				Kind:     initFlags.Kind,
				RepoURL:  initFlags.RepoURL,
				Branch:   initFlags.Branch,
				Schedule: initFlags.Schedule,
				Output:   initFlags.Output,
				Force:    initFlags.Force,
			})
		},
	}

	cmd.Flags().StringVar(&initFlags.Kind, "kind", "config", "starter file kind: config, env, cron, systemd")
	cmd.Flags().StringVar(&initFlags.RepoURL, "repo", "", "worker repository url for the config template")
	cmd.Flags().StringVar(&initFlags.Branch, "branch", "", "worker repository branch")
	cmd.Flags().StringVar(&initFlags.Schedule, "schedule", "", "cron cadence for scheduler snippets")
	cmd.Flags().StringVar(&initFlags.Output, "output", "", "output path (default <dir>/<conventional name>)")
	cmd.Flags().BoolVar(&initFlags.Force, "force", false, "overwrite an existing file")

	return cmd
}

func createReinstallCommand(botsupCommand command, reinstallFlags *ReinstallFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reinstall",
		Short: "Wipe the installation and set it up from scratch",
		Long: `Stop the worker, remove the working copy and the virtualenv, then run
the install flow again. Local modifications and the worker config file are
destroyed, so an interactive confirmation is required unless --yes is given.

Examples:
  botsup reinstall
  botsup reinstall --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return botsupCommand.Reinstall(ReinstallFlags{Yes: reinstallFlags.Yes})
		},
	}

	cmd.Flags().BoolVar(&reinstallFlags.Yes, "yes", false, "skip the confirmation prompt")

	return cmd
}
