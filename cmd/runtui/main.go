// Command runtui runs a script under a terminal dashboard that shows its
// output, traced calls and exceptions live.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/LayerDynamics/runtui/internal/config"
)

// version is set by ldflags at build time.
var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildRoot wires the CLI commands around a shared flag set.
func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	root := createRootCommand(flags)
	root.AddCommand(createRunCommand(flags))
	root.AddCommand(createVersionCommand())
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "runtui",
		Short: "Terminal dashboard for watching a script run",
		Long: `Runtui launches a script as a child process and renders its stdout,
stderr, traced function calls and exceptions in a live terminal UI.

Examples:
  runtui run ./train.py
  runtui run ./build.sh --target release
  runtui run --no-ui --listen 127.0.0.1:7070 ./pipeline.py`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.LogDir, "log-dir", "", "directory for rotated log files")
	root.PersistentFlags().BoolVar(&flags.NoUI, "no-ui", false, "print events as log lines instead of the TUI")
	root.PersistentFlags().StringVar(&flags.Listen, "listen", "", "status API listen address (empty disables)")
	root.PersistentFlags().DurationVar(&flags.StopTimeout, "stop-timeout", 0, "graceful stop wait before SIGKILL")
	root.PersistentFlags().BoolVar(&flags.Metrics, "metrics", true, "expose Prometheus metrics on the status API")

	return root
}

func createRunCommand(flags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script> [args...]",
		Short: "Run a script under the dashboard",
		Long: `Run launches the script with the given arguments and attaches the
dashboard to it. Flag values resolve in order: built-in defaults, the
config file, RUNTUI_* environment variables, then command-line flags.

Examples:
  runtui run ./demo.sh
  runtui run --stop-timeout 5s ./slow_shutdown.py
  runtui run --no-ui ./ci_job.sh --stage test`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.ConfigPath)
			if err != nil {
				return err
			}
			applyFlagOverrides(cfg, flags, cmd.Flags().Changed)
			return runDashboard(cfg, args[0], args[1:], flags.NoUI)
		},
	}
	// Flags after the script path belong to the script.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the runtui version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "runtui %s\n", version)
		},
	}
}

// applyFlagOverrides copies explicitly set flags over the loaded config.
// Unset flags leave file and environment values in place.
func applyFlagOverrides(cfg *config.FileConfig, flags *GlobalFlags, changed func(name string) bool) {
	if changed("log-dir") {
		cfg.Log.Dir = flags.LogDir
	}
	if changed("listen") {
		cfg.Server.Listen = flags.Listen
	}
	if changed("stop-timeout") {
		cfg.Run.StopTimeout = flags.StopTimeout
	}
	if changed("metrics") {
		cfg.Metrics.Enabled = flags.Metrics
	}
}
