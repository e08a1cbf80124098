package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"execd/credstore"
	"execd/execctx"
	"execd/execruntime"
	"execd/logging"
	"execd/nsbuilder"
	"execd/pipeline"
	"execd/sandbox"
)

// pipelineStepCmd is the hidden re-exec target spawn.Spawner.Spawn invokes
// via exec.Command(self, "pipeline-step", executable, argv...). It is never
// meant to be typed by a human; the handoff files and invocation id travel
// through the environment variables spawn.go writes before Start.
var pipelineStepCmd = &cobra.Command{
	Use:    "pipeline-step <executable> [args...]",
	Short:  "Internal: run the C1-C8 child pipeline for one invocation",
	Hidden: true,
	Args:   cobra.MinimumNArgs(1),
	RunE:   runPipelineStep,
}

func init() {
	rootCmd.AddCommand(pipelineStepCmd)
}

func runPipelineStep(cmd *cobra.Command, args []string) error {
	ctxPath := os.Getenv("_EXECD_CONTEXT_FILE")
	paramsPath := os.Getenv("_EXECD_PARAMS_FILE")
	invocationID := os.Getenv("_EXECD_INVOCATION_ID")
	if ctxPath == "" || paramsPath == "" {
		return fmt.Errorf("pipeline-step requires _EXECD_CONTEXT_FILE and _EXECD_PARAMS_FILE in its environment")
	}

	ctx, err := execctx.Load(ctxPath)
	if err != nil {
		return fmt.Errorf("load context: %w", err)
	}
	params, err := execctx.LoadParameters(paramsPath)
	if err != nil {
		return fmt.Errorf("load parameters: %w", err)
	}

	runner := &pipeline.Runner{
		Ctx:          ctx,
		Params:       params,
		Executable:   args[0],
		Argv:         args[1:],
		InvocationID: invocationID,
		Collabs:      buildCollaborators(ctx, params),
	}

	if failure := runner.Run(); failure != nil {
		logging.Error("invocation failed", "step", failure.Step, "code", int(failure.Code), "error", failure.Err)
		os.Exit(int(failure.Code))
	}

	// Run only returns nil if the fixed-order table somehow completed
	// without reaching stepExec's execve; that should never happen.
	return fmt.Errorf("pipeline completed without exec")
}

// buildCollaborators constructs the stateful objects the runner needs fresh
// in this process. execd's CLI is not a resident pid1-style manager, so
// unlike the systemd design this ledger is grounded on, the ExecRuntime
// registry's cross-invocation refcounting (§4.6) only spans the lifetime of
// this one pipeline-step process; a resident manager sharing one Registry
// across restarts of the same unit is out of scope for this CLI shape.
func buildCollaborators(ctx *execctx.Context, params *execctx.Parameters) pipeline.Collaborators {
	collabs := pipeline.Collaborators{
		Runtime:    execruntime.NewRegistry(),
		Namespacer: nsbuilder.SyscallNamespacer{},
	}

	if len(ctx.LoadCredentials) > 0 || len(ctx.SetCredentials) > 0 {
		secret, err := loadOrCreateHostSecret(hostSecretPath)
		if err != nil {
			logging.Warn("failed to load host credential secret, encrypted credentials will fail to decrypt", "error", err)
		}
		collabs.Credentials = &credstore.Store{
			UnitID:           params.UnitID,
			ReceivedCredsDir: params.ReceivedCredentialsDir,
			Decryptor:        credstore.NewAESGCMDecryptor(secret),
		}
		collabs.CredMounter = &credstore.Mounter{
			UnitID:    params.UnitID,
			MustMount: params.Flags.ApplySandboxing,
		}
	}

	if ctx.PAMService != "" {
		collabs.PAMSession = sandbox.NoopSession{}
	}

	return collabs
}
