package pipeline

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"execd/credstore"
	"execd/execctx"
	cerrors "execd/execerrors"
	"execd/execdir"
	"execd/execruntime"
	"execd/fdplumbing"
	"execd/identity"
	"execd/logging"
	"execd/nsbuilder"
	"execd/sandbox"
	"execd/stdio"
	"execd/utils"
)

// StepFailure is what a failing pipeline step reports: the step's name (as
// it appears in the structured log), its exit code, and the underlying
// error. The child's main() translates this directly into os.Exit.
type StepFailure struct {
	Step string
	Code StepCode
	Err  error
}

func (f *StepFailure) Error() string {
	return fmt.Sprintf("step %s: %v", f.Step, f.Err)
}

func (f *StepFailure) Unwrap() error { return f.Err }

func fail(step string, code StepCode, err error) *StepFailure {
	return &StepFailure{Step: step, Code: code, Err: err}
}

// Collaborators groups the stateful objects the runner needs that outlive
// a single invocation (the manager's long-lived registries) as opposed to
// the per-invocation Context/Parameters.
type Collaborators struct {
	Runtime     *execruntime.Registry
	Credentials *credstore.Store
	CredMounter *credstore.Mounter
	Namespacer  nsbuilder.Namespacer
	PAMSession  sandbox.Session
}

// Runner executes the fixed-order child pipeline (C1-C8) for one
// invocation and reports the first failing step, per §4.9's contract.
type Runner struct {
	Ctx          *execctx.Context
	Params       *execctx.Parameters
	Executable   string
	Argv         []string
	InvocationID string
	Collabs      Collaborators

	state runState
}

// runState threads resolved values between steps that later steps need
// (resolved identity, assembled environment, compiled namespace plan,
// rather than re-deriving them).
type runState struct {
	user         *identity.Resolved
	gid          int
	groups       []int
	stdio        *stdio.Result
	env          []string
	deferredLink []execdir.SymlinkPlan
	creds        []execctx.Credential
	rtEntry      *execruntime.Entry
	needMountNS  bool
	bindPlans    []nsbuilder.Plan
	symlinkPlans []nsbuilder.SymlinkPlan

	confirmExit     bool
	confirmExitCode StepCode
}

// Run executes every step in fixed order, stopping at the first failure.
// On success it never returns (the final step replaces the process image
// via execve); on failure it returns the StepFailure describing what to
// report and exit with.
func (r *Runner) Run() *StepFailure {
	steps := []struct {
		name string
		code StepCode
		run  func() error
	}{
		{"confirm", ExitConfirm, r.stepConfirmSpawn},
		{"idle_pipe", ExitIdlePipe, r.stepIdlePipe},
		{"fds", ExitFDs, r.stepFDs},
		{"stdin", ExitStdin, r.stepStdin},
		{"stdout", ExitStdout, r.stepStdout},
		{"stderr", ExitStderr, r.stepStderr},
		{"user", ExitUser, r.stepResolveUser},
		{"group", ExitGroup, r.stepResolveGroup},
		{"process_tuning", ExitLimits, r.stepProcessTuning},
		{"terminal_ownership", ExitLimits, r.stepTerminalOwnership},
		{"cgroup_delegation", ExitLimits, r.stepCgroupDelegation},
		{"state_directory", ExitStateDirectory, r.stepExecDirectories},
		{"credentials", ExitCredentials, r.stepCredentials},
		{"environment", ExitExec, r.stepEnvironment},
		{"keyring", ExitKeyring, r.stepKeyring},
		{"limits", ExitLimits, r.stepRlimits},
		{"pam", ExitPAM, r.stepPAM},
		{"namespace", ExitNamespace, r.stepNamespacePlan},
		{"network", ExitNetwork, r.stepNetworkNamespace},
		{"namespace_enter", ExitNamespace, r.stepEnterNamespaces},
		{"namespace_hostname", ExitNamespace, r.stepHostname},
		{"group_enforce", ExitGroup, r.stepEnforceGroups},
		{"setresuid", ExitUser, r.stepSetresuid},
		{"exec_lookup", ExitExec, r.stepExecLookup},
		{"capabilities", ExitCapabilities, r.stepCapabilities},
		{"securebits", ExitSecureBits, r.stepSecureBits},
		{"no_new_privileges", ExitNoNewPrivileges, r.stepNoNewPrivileges},
		{"address_families", ExitAddressFamilies, r.stepAddressFamilies},
		{"seccomp", ExitSeccomp, r.stepSeccomp},
		{"exec", ExitExec, r.stepExec},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			logging.Error("pipeline step failed",
				"step", step.name,
				"code", int(step.code),
				"executable", r.Executable,
				"invocation_id", r.InvocationID,
				"error", err)
			return fail(step.name, step.code, err)
		}
		if r.state.confirmExit {
			logging.Info("confirm-spawn short-circuit",
				"unit", r.Params.UnitID,
				"invocation_id", r.InvocationID,
				"code", int(r.state.confirmExitCode))
			os.Exit(int(r.state.confirmExitCode))
		}
	}

	// stepExec only returns on failure (execve replaced the image on
	// success); reaching here means something logged success incorrectly.
	return nil
}

// stepConfirmSpawn implements §4.9's interactive confirm-spawn gate, run
// before any fd or identity setup so a "fake" answer never touches real
// resources. A non-execute answer marks the run state so Run exits the
// child directly once this step reports success.
func (r *Runner) stepConfirmSpawn() error {
	cmdline := strings.Join(append([]string{r.Executable}, r.Argv...), " ")
	result, err := ConfirmSpawn(r.Params, cmdline)
	if err != nil {
		return err
	}
	switch result {
	case ConfirmFakeSuccess:
		r.state.confirmExit = true
		r.state.confirmExitCode = ExitSuccess
	case ConfirmFakeFailure:
		r.state.confirmExit = true
		r.state.confirmExitCode = ExitFailure
	case ConfirmCancel:
		r.state.confirmExit = true
		r.state.confirmExitCode = ExitConfirm
	}
	return nil
}

// stepIdlePipe runs the "boot boredom" idle-pipe dance before the rest of
// the pipeline proceeds (§4.9/§5); a no-op when no idle pipe was passed.
func (r *Runner) stepIdlePipe() error {
	return RunIdlePipeDance(r.Params.IdlePipe)
}

// stepFDs implements C1: shift the incoming socket+storage fds into their
// contiguous block starting at fd 3.
func (r *Runner) stepFDs() error {
	all := make([]int, 0, len(r.Params.SocketFDs)+len(r.Params.StorageFDs))
	for _, e := range r.Params.SocketFDs {
		all = append(all, e.FD)
	}
	for _, e := range r.Params.StorageFDs {
		all = append(all, e.FD)
	}
	if len(all) == 0 {
		return nil
	}
	shifted, err := fdplumbing.Shift(all)
	if err != nil {
		return err
	}
	if err := fdplumbing.SetNonblockPrefix(shifted, len(r.Params.SocketFDs), true); err != nil {
		return err
	}
	return nil
}

func isStdioOp(err error, op string) bool {
	var ee *cerrors.ExecError
	if cerrors.As(err, &ee) {
		return strings.Contains(ee.Op, op)
	}
	return false
}

// stepStdin/stepStdout/stepStderr all resolve via stdio.Resolve, which
// handles all three streams in one pass (stdout/stderr share journal and
// socket-activation bookkeeping); splitting the single call into three
// step names lets the failure-step contract attribute the right code
// by inspecting which stream resolveOutput/resolveInput tagged the error
// with.
func (r *Runner) stepStdin() error {
	res, err := stdio.Resolve(r.Ctx, r.Params)
	if err != nil {
		if isStdioOp(err, "stdin") {
			return err
		}
		return nil // attributed to a later stdio step
	}
	r.state.stdio = res
	return nil
}

func (r *Runner) stepStdout() error {
	if r.state.stdio != nil {
		return nil
	}
	_, err := stdio.Resolve(r.Ctx, r.Params)
	if err != nil && isStdioOp(err, "stdout") {
		return err
	}
	return nil
}

func (r *Runner) stepStderr() error {
	if r.state.stdio != nil {
		return nil
	}
	res, err := stdio.Resolve(r.Ctx, r.Params)
	if err != nil {
		return err // anything left over is attributed to stderr
	}
	r.state.stdio = res
	return nil
}

func (r *Runner) stepResolveUser() error {
	u, err := identity.ResolveUser(r.Ctx.User)
	if err != nil {
		return err
	}
	r.state.user = u
	return nil
}

func (r *Runner) stepResolveGroup() error {
	gid, err := identity.ResolveGroup(r.Ctx.Group)
	if err != nil {
		return err
	}
	if gid < 0 && r.state.user != nil {
		gid = r.state.user.GID
	}
	r.state.gid = gid

	groups, err := identity.SupplementaryGroups(r.state.user, r.Ctx.User, r.Ctx.SupplementaryGroups)
	if err != nil {
		return err
	}
	r.state.groups = groups
	return nil
}

func (r *Runner) stepExecDirectories() error {
	uid := -1
	if r.state.user != nil {
		uid = r.state.user.UID
	}
	gid := r.state.gid

	mgr := &execdir.Manager{
		Prefixes: r.Params.DirectoryPrefix,
		UID:      uid,
		GID:      gid,
		Dynamic:  r.Ctx.DynamicUser,
	}
	r.state.needMountNS = nsbuilder.NeedsMountNamespace(r.Ctx)
	deferred, err := mgr.Apply(r.Ctx, r.state.needMountNS)
	if err != nil {
		return err
	}
	r.state.deferredLink = deferred
	return nil
}

func (r *Runner) stepCredentials() error {
	if r.Collabs.Credentials == nil {
		return nil
	}
	creds, err := r.Collabs.Credentials.Acquire(r.Ctx)
	if err != nil {
		return err
	}
	r.state.creds = creds

	if r.Collabs.CredMounter != nil && r.Params.Flags.WriteCredentials {
		if r.state.user != nil {
			r.Collabs.CredMounter.ServiceUID = r.state.user.UID
		}
		r.Collabs.CredMounter.ServiceGID = r.state.gid
		dir := r.Params.DirectoryPrefix[execctx.DirRuntime] + "/credentials/" + r.Params.UnitID
		if err := r.Collabs.CredMounter.Publish(dir, creds); err != nil {
			return err
		}
	}
	return nil
}

// stepEnvironment implements §6's synthesised-environment table.
func (r *Runner) stepEnvironment() error {
	env := append([]string{}, r.Params.Environment...)

	if len(r.Params.SocketFDs) > 0 {
		env = append(env, fmt.Sprintf("LISTEN_PID=%d", os.Getpid()))
		env = append(env, fmt.Sprintf("LISTEN_FDS=%d", len(r.Params.SocketFDs)))
		names := make([]string, len(r.Params.SocketFDs))
		for i, e := range r.Params.SocketFDs {
			names[i] = e.Name
		}
		env = append(env, "LISTEN_FDNAMES="+strings.Join(names, ":"))
	}
	if r.Params.Flags.SetWatchdog {
		env = append(env, fmt.Sprintf("WATCHDOG_PID=%d", os.Getpid()))
		env = append(env, fmt.Sprintf("WATCHDOG_USEC=%d", r.Params.WatchdogUSec))
	}
	if r.Ctx.DynamicUser || r.Params.Flags.NSSDynamicBypass {
		env = append(env, "SYSTEMD_NSS_DYNAMIC_BYPASS=1")
	}
	if r.state.user != nil && r.state.user.UID >= 0 {
		env = append(env, "LOGNAME="+r.Ctx.User, "USER="+r.Ctx.User)
		if r.state.user.Home != "" {
			env = append(env, "HOME="+r.state.user.Home)
		}
		if r.state.user.Shell != "" {
			env = append(env, "SHELL="+r.state.user.Shell)
		}
	}
	env = append(env, "INVOCATION_ID="+r.InvocationID)
	if r.state.stdio != nil && r.state.stdio.JournalStream != nil {
		env = append(env, r.state.stdio.JournalStream.Env())
	}
	if r.Ctx.IO.LogNamespace != "" {
		env = append(env, "LOG_NAMESPACE="+r.Ctx.IO.LogNamespace)
	}
	for _, kind := range execctx.AllDirectoryKinds {
		if r.Params.DirectoryPrefix[kind] != "" {
			env = append(env, strings.ToUpper(kind.String())+"_DIRECTORY="+r.Params.DirectoryPrefix[kind])
		}
	}
	if r.Params.Flags.WriteCredentials {
		env = append(env, "CREDENTIALS_DIRECTORY="+r.Params.DirectoryPrefix[execctx.DirRuntime]+"/credentials/"+r.Params.UnitID)
	}
	env = append(env, fmt.Sprintf("SYSTEMD_EXEC_PID=%d", os.Getpid()))

	r.state.env = env
	return nil
}

func (r *Runner) stepKeyring() error {
	if r.Ctx.Privileges.KeyringMode == "" || r.Ctx.Privileges.KeyringMode == "inherit" {
		return nil
	}
	return sandbox.KeyringPopulate(r.InvocationID)
}

// stepProcessTuning implements step 1 (process tuning) and step 2
// (personality), fixed as the first two steps of §4.8's order.
func (r *Runner) stepProcessTuning() error {
	if err := sandbox.ApplyProcessTuning(&r.Ctx.Resources); err != nil {
		return err
	}
	return sandbox.ApplyPersonality(r.Ctx.Privileges.Personality)
}

// stepTerminalOwnership implements step 4: chown the controlling tty to the
// service uid once the user/group have been resolved, so a non-root service
// inherits a terminal it can actually use. A no-op for non-tty stdin or an
// unresolved (root-only) user.
func (r *Runner) stepTerminalOwnership() error {
	if r.state.user == nil || r.state.user.UID < 0 {
		return nil
	}
	switch r.Ctx.IO.StdInput {
	case execctx.IOTTY, execctx.IOTTYForce, execctx.IOTTYFail:
	default:
		return nil
	}
	path := r.Ctx.IO.TTYPath
	if path == "" {
		path = "/dev/console"
	}
	return sandbox.ApplyTerminalOwnership(path, r.state.user.UID, r.state.gid)
}

// stepCgroupDelegation implements step 5: when cgroup delegation is
// requested, hand the unit's own cgroup directory to the service uid so the
// delegated process can manage its own subtree_control and cgroup.procs.
func (r *Runner) stepCgroupDelegation() error {
	if !r.Params.Flags.CgroupDelegate || r.Params.CgroupPath == "" {
		return nil
	}
	if r.state.user == nil || r.state.user.UID < 0 {
		return nil
	}
	return sandbox.ApplyCgroupDelegationOwnership(r.Params.CgroupPath, r.state.user.UID, r.state.gid)
}

// stepRlimits implements step 9: rlimits, applied before PAM so
// pam_limits can still override them.
func (r *Runner) stepRlimits() error {
	if err := sandbox.ApplyRlimits(&r.Ctx.Resources); err != nil {
		return err
	}
	sandbox.ApplyUmask(r.Ctx.Resources.Umask)
	return nil
}

func (r *Runner) stepPAM() error {
	if r.Ctx.PAMService == "" {
		return nil
	}
	session := r.Collabs.PAMSession
	if session == nil {
		session = sandbox.NoopSession{}
	}
	username := r.Ctx.User
	if err := session.Open(r.Ctx.PAMService, username); err != nil {
		return err
	}

	barrier, err := utils.NewEventBarrier()
	if err != nil {
		return err
	}
	defer barrier.Close()

	targetUID := -1
	if r.state.user != nil {
		targetUID = r.state.user.UID
	}
	if _, err := sandbox.StartKeeper(session, targetUID, barrier); err != nil {
		return err
	}
	return nil
}

// stepNamespacePlan compiles the bind-mount and symlink plans (C7) but
// does not yet create namespaces; CloneFlags is computed once the
// ExecRuntime entry (if any) is known.
func (r *Runner) stepNamespacePlan() error {
	r.state.bindPlans = nsbuilder.CompileBindMounts(r.Ctx, r.Params.DirectoryPrefix)
	r.state.symlinkPlans = nsbuilder.CompileSymlinks(r.Ctx, r.Params.DirectoryPrefix)
	return nil
}

// stepNetworkNamespace acquires the ExecRuntime entry (C6), which may
// carry pre-shared netns/ipcns socket pairs for sibling processes.
func (r *Runner) stepNetworkNamespace() error {
	if r.Collabs.Runtime == nil {
		return nil
	}
	entry, err := r.Collabs.Runtime.Acquire(r.Params.UnitID, r.Ctx, true)
	if err != nil {
		return err
	}
	r.state.rtEntry = entry
	return nil
}

// stepEnterNamespaces implements C7's CreateNamespaces call plus the
// actual bind-mount/symlink application once inside the new mount ns.
// ENOANO (cannot namespace) is recoverable iff no fs-rearranging setting
// is configured, matching §7's namespace-unavailability taxonomy entry.
func (r *Runner) stepEnterNamespaces() error {
	flags := nsbuilder.CloneFlags(r.Ctx, r.state.rtEntry)
	if !r.state.needMountNS && len(r.state.bindPlans) == 0 && flags == 0 {
		return nil
	}
	namespacer := r.Collabs.Namespacer
	if namespacer == nil {
		namespacer = nsbuilder.SyscallNamespacer{}
	}
	if err := namespacer.CreateNamespaces(flags); err != nil {
		if err == nsbuilder.ErrCannotNamespace && !nsbuilder.InsistOnSandboxing(r.Ctx) {
			return nil
		}
		return err
	}
	if flags&nsbuilder.CLONE_NEWUSER != 0 && r.Params.UserNSReadyFD >= 0 {
		if err := r.runUserNSBootstrap(); err != nil {
			return err
		}
	}
	if err := applyBindMounts(r.state.bindPlans, r.state.symlinkPlans); err != nil {
		return err
	}
	return applyDeferredDirectorySymlinks(r.state.deferredLink)
}

// runUserNSBootstrap signals the spawner that the new user namespace is
// active (still unmapped) and blocks until it has written uid_map/gid_map,
// per §5's parent/child ordering guarantee for user-namespace bootstrap.
func (r *Runner) runUserNSBootstrap() error {
	bootstrap := nsbuilder.WrapUserNSBootstrap(r.Params.UserNSReadyFD, r.Params.UserNSErrsFD)
	if err := bootstrap.ChildSignalReady(); err != nil {
		return fmt.Errorf("signal userns ready: %w", err)
	}
	if err := bootstrap.ChildWaitMapped(); err != nil {
		return fmt.Errorf("wait for userns mapping: %w", err)
	}
	return nil
}

// applyDeferredDirectorySymlinks creates the exec-directory symlinks that
// execdir.Manager.Apply deferred until the mount namespace existed (the
// private/ hosting scheme needs the namespace in place before the
// public-facing path can be replaced with a symlink into it).
func applyDeferredDirectorySymlinks(plans []execdir.SymlinkPlan) error {
	for _, p := range plans {
		os.Remove(p.Link)
		if err := os.Symlink(p.Target, p.Link); err != nil {
			return fmt.Errorf("symlink %s -> %s: %w", p.Link, p.Target, err)
		}
	}
	return nil
}

func (r *Runner) stepHostname() error {
	if r.Ctx.Syscall.ProtectHostname {
		return nsbuilder.SetHostname(r.Params.UnitID)
	}
	return nil
}

func (r *Runner) stepEnforceGroups() error {
	return identity.Enforce(r.state.groups, r.state.gid, userUIDOr(r.state.user, -1))
}

func userUIDOr(u *identity.Resolved, def int) int {
	if u == nil {
		return def
	}
	return u.UID
}

func (r *Runner) stepSetresuid() error {
	if r.state.user == nil || r.state.user.UID < 0 {
		return nil
	}
	if err := sandbox.ApplyAmbientSet(r.Ctx.Privileges.CapabilityAmbientSet); err != nil {
		return err
	}
	if err := unix.Setresgid(r.state.gid, r.state.gid, r.state.gid); err != nil {
		return err
	}
	if err := unix.Setresuid(r.state.user.UID, r.state.user.UID, r.state.user.UID); err != nil {
		return err
	}
	return sandbox.ApplyAmbientSet(r.Ctx.Privileges.CapabilityAmbientSet)
}

func (r *Runner) stepExecLookup() error {
	if r.Executable == "" {
		return fmt.Errorf("no executable configured")
	}
	path, err := exec.LookPath(r.Executable)
	if err != nil {
		return err
	}
	r.Executable = path
	return nil
}

func (r *Runner) stepCapabilities() error {
	if !sandbox.NeedsCapabilityWork(&r.Ctx.Privileges) {
		return nil
	}
	return sandbox.DropBoundingSet(r.Ctx.Privileges.CapabilityBoundingSet)
}

func (r *Runner) stepSecureBits() error {
	if r.Ctx.Privileges.SecureBits == 0 {
		return nil
	}
	return sandbox.ApplySecureBits(r.Ctx.Privileges.SecureBits)
}

func (r *Runner) stepNoNewPrivileges() error {
	if !r.Ctx.Privileges.NoNewPrivileges {
		return nil
	}
	return sandbox.ApplyNoNewPrivileges()
}

func (r *Runner) stepAddressFamilies() error {
	if len(r.Ctx.Syscall.RestrictAddressFamilies) == 0 {
		return nil
	}
	return sandbox.RestrictAddressFamilies(r.Ctx.Syscall.RestrictAddressFamilies, r.Ctx.Syscall.RestrictAddressFamiliesAllowList)
}

func (r *Runner) stepSeccomp() error {
	sc := &r.Ctx.Syscall
	if len(sc.Filter) == 0 && !sc.MemoryDenyWriteExecute && !sc.RestrictRealtime &&
		!sc.RestrictSUIDSGID && sc.RestrictNamespaces == execctx.RestrictNamespacesInitial &&
		!sc.ProtectKernelModules && !sc.ProtectKernelLogs && !sc.ProtectClock {
		return nil
	}
	builder, err := sandbox.NewBuilder(sc.DefaultErrno, sc.AllowList)
	if err != nil {
		return err
	}
	defer builder.Release()
	return builder.ApplyFilter(sc)
}

// stepExec implements step 35: flip the exec-fd hot (if one was supplied
// for exec-notification) and replace the process image. Only returns on
// failure, per execve's contract.
func (r *Runner) stepExec() error {
	if r.Params.ExecNotifyFD >= 0 {
		unix.Write(r.Params.ExecNotifyFD, []byte{1})
	}
	return unix.Exec(r.Executable, append([]string{r.Executable}, r.Argv...), r.state.env)
}

// applyBindMounts performs the mount(2)/symlink(2) calls the namespace
// builder's compiled plans describe, once inside the new mount namespace.
func applyBindMounts(plans []nsbuilder.Plan, symlinks []nsbuilder.SymlinkPlan) error {
	for _, p := range plans {
		flags := uintptr(unix.MS_BIND)
		if p.Recursive {
			flags |= unix.MS_REC
		}
		if err := unix.Mount(p.Source, p.Destination, "", flags, ""); err != nil {
			if p.IgnoreMissing && os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("bind mount %s -> %s: %w", p.Source, p.Destination, err)
		}
		if p.ReadOnly {
			remountFlags := uintptr(unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY)
			if p.NoSuid {
				remountFlags |= unix.MS_NOSUID
			}
			if err := unix.Mount("", p.Destination, "", remountFlags, ""); err != nil {
				return fmt.Errorf("remount ro %s: %w", p.Destination, err)
			}
		}
	}
	for _, s := range symlinks {
		os.Remove(s.Link)
		if err := os.Symlink(s.Target, s.Link); err != nil {
			return fmt.Errorf("symlink %s -> %s: %w", s.Link, s.Target, err)
		}
	}
	return nil
}
