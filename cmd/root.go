// Package cmd implements the execd CLI: the manager-facing entry point that
// assembles an execution context, spawns a pipeline step, and inspects the
// ExecRuntime/credential state of running units.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"execd/logging"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	SpecVer   = "1.0.2"
	BuildTime = "unknown"
)

// Global flags
var (
	globalRuntimeDir string
	globalLog        string
	globalLogFormat  string
	globalDebug      bool
)

// rootCmd is the base command for execd.
var rootCmd = &cobra.Command{
	Use:   "execd",
	Short: "Execution-context assembly pipeline",
	Long: `execd assembles a per-invocation execution context from unit
parameters, spawns the fixed-order child pipeline (identity resolution,
directories, credentials, sandboxing, namespaces) and execs the configured
command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetContext returns a context that cancels on SIGINT/SIGTERM.
func GetContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

// GetRuntimeDir returns the directory used for handoff files and
// ExecRuntime-backed state (private /tmp trees, namespace sharing
// sockets).
func GetRuntimeDir() string {
	if globalRuntimeDir != "" {
		return globalRuntimeDir
	}
	return "/run/execd"
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalRuntimeDir, "runtime-dir", "", "runtime directory for handoff files and runtime state (default: /run/execd)")
	rootCmd.PersistentFlags().StringVar(&globalLog, "log", "", "set the log file path")
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "set the format for log output (text or json)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
}

func setupLogging() {
	var logOutput = os.Stderr
	if globalLog != "" {
		f, err := os.OpenFile(globalLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err == nil {
			logOutput = f
		}
	}

	logLevel := slog.LevelInfo
	if globalDebug {
		logLevel = slog.LevelDebug
	}

	if globalLogFormat == "json" || globalLog != "" || globalDebug {
		logger := logging.NewLogger(logging.Config{
			Level:  logLevel,
			Format: globalLogFormat,
			Output: logOutput,
		})
		logging.SetDefault(logger)
	}
}
