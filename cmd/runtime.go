package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"execd/execctx"
	"execd/execruntime"
)

var runtimeCmd = &cobra.Command{
	Use:   "runtime",
	Short: "Inspect ExecRuntime (C6) behavior for a context",
	Args:  cobra.NoArgs,
}

var runtimeCheckCmd = &cobra.Command{
	Use:   "check <context-file>",
	Short: "Report whether an ExecContext would allocate ExecRuntime state",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuntimeCheck,
}

func init() {
	rootCmd.AddCommand(runtimeCmd)
	runtimeCmd.AddCommand(runtimeCheckCmd)
}

func runRuntimeCheck(cmd *cobra.Command, args []string) error {
	ctx, err := execctx.LoadYAML(args[0])
	if err != nil {
		return fmt.Errorf("load context: %w", err)
	}

	if !execruntime.NeedsRuntime(ctx) {
		fmt.Println("no ExecRuntime state would be allocated")
		return nil
	}

	fmt.Println("ExecRuntime state would be allocated:")
	fs := ctx.Filesystem
	if fs.PrivateTmp {
		fmt.Println("  private /tmp and /var/tmp trees")
	}
	if fs.PrivateNetwork {
		fmt.Println("  shared network namespace socket pair")
	}
	if fs.PrivateIPC {
		fmt.Println("  shared IPC namespace socket pair")
	}
	if fs.NamespacePath != "" {
		fmt.Printf("  explicit namespace path: %s\n", fs.NamespacePath)
	}
	return nil
}
