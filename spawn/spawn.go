// Package spawn implements component C10 of the execution-context assembly
// pipeline: the parent-side pre-fork assembly, the fork+re-exec into the
// pipeline-step target, and the post-fork bookkeeping (cgroup attach,
// ExecStatus recording).
package spawn

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"execd/execctx"
	"execd/identity"
	"execd/logging"
	"execd/nsbuilder"
)

// pipelineStepArg is the hidden re-exec subcommand name the spawned child
// is started with; cmd/execd's "pipeline-step" command parses the handoff
// files this package writes and runs pipeline.Runner with collaborators
// constructed fresh in that process (they cannot cross the fork+exec
// boundary, unlike a raw fork).
const pipelineStepArg = "pipeline-step"

// Spawner forks and re-execs the current binary to run one invocation's
// child pipeline, matching the teacher's "exec.Command(self, \"init\")"
// re-exec shape.
type Spawner struct {
	Self       string // path to this executable, for re-exec
	RuntimeDir string // base directory for handoff files
}

// NewSpawner resolves the current executable's path.
func NewSpawner(runtimeDir string) (*Spawner, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve own executable: %w", err)
	}
	return &Spawner{Self: self, RuntimeDir: runtimeDir}, nil
}

// CommandLine composes the "Failed at step X spawning Y" style log line
// per §6.
func CommandLine(executable string, argv []string) string {
	return strings.Join(append([]string{executable}, argv...), " ")
}

// ReloadMAC reloads the SELinux/AppArmor/Smack label database once before
// forking. No MAC binding library exists in the corpus this repo draws
// from, so this is a documented no-op, matching §7's "optional external"
// taxonomy entry (the same policy already applied to PAM).
func ReloadMAC() error {
	return nil
}

// Spawn performs the full C10 sequence: pre-fork assembly, fork+re-exec,
// the user-namespace bootstrap dance (if configured), and post-fork
// cgroup attach + status recording.
func (s *Spawner) Spawn(ctx *execctx.Context, params *execctx.Parameters, executable string, argv []string, invocationID string, status *execctx.Status) (*exec.Cmd, error) {
	if err := ResolveNamedFDs(ctx, params); err != nil {
		return nil, err
	}

	envFiles, err := LoadEnvironmentFiles(params.EnvironmentFiles)
	if err != nil {
		return nil, err
	}
	params.Environment = append(params.Environment, envFiles...)

	cmdline := CommandLine(executable, argv)

	var ctrlCgroup *Cgroup
	if params.Flags.IsControl && params.Flags.CgroupDelegate && params.CgroupPath != "" {
		ctrlCgroup, err = EnsureControlSubcgroup(params.CgroupPath)
		if err != nil {
			return nil, fmt.Errorf("create control subcgroup: %w", err)
		}
	}

	if err := ReloadMAC(); err != nil {
		return nil, err
	}

	extraFiles, socketCount := s.buildExtraFiles(params)

	var bootstrap *nsbuilder.UserNSBootstrap
	if ctx.Filesystem.PrivateUsers {
		bootstrap, err = nsbuilder.NewUserNSBootstrap()
		if err != nil {
			return nil, fmt.Errorf("allocate userns bootstrap: %w", err)
		}
		defer bootstrap.Close()
		readyIdx := len(extraFiles)
		extraFiles = append(extraFiles, bootstrap.Ready.File(), bootstrap.Errs.ParentFile())
		params.UserNSReadyFD = 3 + readyIdx
		params.UserNSErrsFD = 3 + readyIdx + 1
	}

	// Re-number the socket/storage fd entries to the positions they land
	// at in the child once ExtraFiles is applied.
	for i := range params.SocketFDs {
		params.SocketFDs[i].FD = 3 + i
	}
	for i := range params.StorageFDs {
		params.StorageFDs[i].FD = 3 + socketCount + i
	}

	ctxPath, paramsPath, err := s.writeHandoffFiles(ctx, params, invocationID)
	if err != nil {
		return nil, err
	}
	defer os.Remove(ctxPath)
	defer os.Remove(paramsPath)

	cmd := exec.Command(s.Self, pipelineStepArg, executable)
	cmd.Args = append(cmd.Args, argv...)
	cmd.Env = []string{
		"_EXECD_CONTEXT_FILE=" + ctxPath,
		"_EXECD_PARAMS_FILE=" + paramsPath,
		"_EXECD_INVOCATION_ID=" + invocationID,
	}
	cmd.ExtraFiles = extraFiles
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr

	logging.Info("spawning pipeline step", "unit", params.UnitID, "cmdline", cmdline, "invocation_id", invocationID)

	status.StartTimestamp = execctx.InvocationStart()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start pipeline step: %w", err)
	}
	status.PID = cmd.Process.Pid

	if bootstrap != nil {
		if err := s.runUserNSMapping(bootstrap, ctx, cmd.Process.Pid); err != nil {
			return cmd, err
		}
	}

	if ctrlCgroup != nil {
		if err := ctrlCgroup.AddProcess(cmd.Process.Pid); err != nil {
			logging.Warn("failed to attach control command to subcgroup", "error", err)
		}
	} else if params.CgroupPath != "" {
		if cg, err := NewCgroup(params.CgroupPath); err == nil {
			if err := cg.AddProcess(cmd.Process.Pid); err != nil {
				logging.Warn("failed to attach to cgroup", "error", err)
			}
		}
	}

	return cmd, nil
}

// buildExtraFiles assembles the passed socket/storage fds in the fixed
// order fdplumbing.Shift expects them to appear at after inheritance.
func (s *Spawner) buildExtraFiles(params *execctx.Parameters) (files []*os.File, socketCount int) {
	for _, e := range params.SocketFDs {
		files = append(files, os.NewFile(uintptr(e.FD), e.Name))
	}
	for _, e := range params.StorageFDs {
		files = append(files, os.NewFile(uintptr(e.FD), e.Name))
	}
	return files, len(params.SocketFDs)
}

// runUserNSMapping waits for the child's "ready" signal, writes
// uid_map/gid_map/setgroups, and signals back, completing the bootstrap
// handshake described in §5.
func (s *Spawner) runUserNSMapping(bootstrap *nsbuilder.UserNSBootstrap, ctx *execctx.Context, pid int) error {
	if err := bootstrap.Ready.Wait(); err != nil {
		return fmt.Errorf("wait for userns ready: %w", err)
	}

	resolved, err := identity.ResolveUser(ctx.User)
	if err != nil {
		return fmt.Errorf("resolve target identity for userns mapping: %w", err)
	}
	targetUID, targetGID := resolved.UID, resolved.GID
	if targetUID < 0 {
		targetUID = os.Getuid()
	}
	if targetGID < 0 {
		targetGID = os.Getgid()
	}

	haveSetUID := os.Getuid() == 0
	haveSetGID := os.Getuid() == 0
	if err := nsbuilder.WriteMappings(pid, os.Getuid(), os.Getgid(), targetUID, targetGID, haveSetUID, haveSetGID); err != nil {
		_ = bootstrap.Errs.Signal()
		return fmt.Errorf("write userns mappings: %w", err)
	}
	return bootstrap.Errs.Signal()
}

// writeHandoffFiles persists Context and Parameters as JSON so the
// pipeline-step re-exec target can reconstruct them; the payload is too
// large to pass reliably via argv/env.
func (s *Spawner) writeHandoffFiles(ctx *execctx.Context, params *execctx.Parameters, invocationID string) (ctxPath, paramsPath string, err error) {
	dir := s.RuntimeDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", "", fmt.Errorf("create handoff directory: %w", err)
	}

	ctxPath = dir + "/" + invocationID + ".context.json"
	paramsPath = dir + "/" + invocationID + ".params.json"

	if err := ctx.Save(ctxPath); err != nil {
		return "", "", fmt.Errorf("write context handoff file: %w", err)
	}
	if err := params.Save(paramsPath); err != nil {
		os.Remove(ctxPath)
		return "", "", fmt.Errorf("write params handoff file: %w", err)
	}
	return ctxPath, paramsPath, nil
}

// RecordExit fills in a command's ExecStatus once its process has exited,
// per §4.10's "record start time and pid" contract extended to cover exit.
func RecordExit(status *execctx.Status, cmd *exec.Cmd, waitErr error) {
	status.ExitTimestamp = execctx.InvocationStart()
	if waitErr == nil {
		status.SigchldCode = 1 // CLD_EXITED
		status.ExitStatus = 0
		return
	}
	var exitErr *exec.ExitError
	if asExitError(waitErr, &exitErr) {
		ws, ok := exitErr.Sys().(syscall.WaitStatus)
		if !ok {
			status.ExitStatus = -1
			return
		}
		if ws.Exited() {
			status.SigchldCode = 1 // CLD_EXITED
			status.ExitStatus = ws.ExitStatus()
			return
		}
		if ws.Signaled() {
			status.SigchldCode = 2 // CLD_KILLED
			status.ExitStatus = int(ws.Signal())
			return
		}
	}
	status.SigchldCode = 0
	status.ExitStatus = -1
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	*target = ee
	return true
}
