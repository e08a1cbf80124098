package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"execd/execctx"
	"execd/logging"
	"execd/spawn"
)

var spawnCmd = &cobra.Command{
	Use:   "spawn <executable> [args...]",
	Short: "Assemble an execution context and spawn one invocation",
	Long: `spawn reads an ExecContext (YAML) and ExecParameters (JSON), assembles
the per-invocation state, and spawns the pipeline-step child that carries
out the fixed-order C1-C8 pipeline before execing the given command.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSpawn,
}

var (
	spawnContextFile string
	spawnParamsFile  string
)

func init() {
	rootCmd.AddCommand(spawnCmd)

	spawnCmd.Flags().StringVar(&spawnContextFile, "context", "", "path to an ExecContext YAML file (required)")
	spawnCmd.Flags().StringVar(&spawnParamsFile, "params", "", "path to an ExecParameters JSON file (required)")
	spawnCmd.MarkFlagRequired("context")
	spawnCmd.MarkFlagRequired("params")
}

func runSpawn(cmd *cobra.Command, args []string) error {
	ctx, err := execctx.LoadYAML(spawnContextFile)
	if err != nil {
		return fmt.Errorf("load context: %w", err)
	}
	params, err := execctx.LoadParameters(spawnParamsFile)
	if err != nil {
		return fmt.Errorf("load parameters: %w", err)
	}

	invocationID := uuid.NewString()

	spawner, err := spawn.NewSpawner(GetRuntimeDir())
	if err != nil {
		return fmt.Errorf("initialize spawner: %w", err)
	}

	executable := args[0]
	argv := args[1:]

	status := &execctx.Status{}
	child, err := spawner.Spawn(ctx, params, executable, argv, invocationID, status)
	if err != nil {
		return fmt.Errorf("spawn %s: %w", executable, err)
	}

	logging.Info("spawned invocation", "unit", params.UnitID, "pid", status.PID, "invocation_id", invocationID)

	waitErr := child.Wait()
	spawn.RecordExit(status, child, waitErr)

	logging.Info("invocation exited", "unit", params.UnitID, "pid", status.PID,
		"sigchld_code", status.SigchldCode, "exit_status", status.ExitStatus)

	os.Exit(status.ExitStatus)
	return nil
}
