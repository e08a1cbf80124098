// Package nsbuilder implements component C7 of the execution-context
// assembly pipeline: deciding whether a mount namespace is needed,
// compiling its bind-mount and symlink plans, and driving namespace
// creation and the user-namespace bootstrap handshake.
package nsbuilder

import (
	"errors"
	"syscall"

	"execd/execctx"
	"execd/execruntime"
)

// Linux namespace clone flags, named the way kornnellio-runc-Go's
// linux/namespace.go names them.
const (
	CLONE_NEWNS     = syscall.CLONE_NEWNS
	CLONE_NEWUTS    = syscall.CLONE_NEWUTS
	CLONE_NEWIPC    = syscall.CLONE_NEWIPC
	CLONE_NEWPID    = syscall.CLONE_NEWPID
	CLONE_NEWNET    = syscall.CLONE_NEWNET
	CLONE_NEWUSER   = syscall.CLONE_NEWUSER
	CLONE_NEWCGROUP = 0x02000000
)

// ErrCannotNamespace is the exclusive "cannot namespace in this container"
// sentinel (ENOANO) a namespace-creation collaborator may return.
var ErrCannotNamespace = errors.New("nsbuilder: cannot create namespace in this container (ENOANO)")

// NeedsMountNamespace implements §4.7's need-mount-ns predicate.
func NeedsMountNamespace(ctx *execctx.Context) bool {
	fs := ctx.Filesystem

	if fs.RootDirectory != "" || fs.RootImage != nil {
		return true
	}
	if len(fs.ReadOnlyPaths) > 0 || len(fs.ReadWritePaths) > 0 || len(fs.InaccessiblePaths) > 0 ||
		len(fs.ExecPaths) > 0 || len(fs.NoExecPaths) > 0 {
		return true
	}
	if len(fs.BindMounts) > 0 || len(fs.TmpfsMounts) > 0 {
		return true
	}
	if len(fs.MountImages) > 0 || len(fs.ExtensionImages) > 0 || len(fs.ExtensionDirs) > 0 {
		return true
	}
	if fs.MountPropagation != "" && fs.MountPropagation != "private" {
		return true
	}
	if fs.PrivateTmp {
		return true
	}
	if fs.PrivateDevices || fs.PrivateNetwork || fs.PrivateIPC {
		return true
	}
	if fs.ProtectHome != execctx.ProtectOff || fs.ProtectSystem != execctx.ProtectOff {
		return true
	}
	if fs.ProtectProc != "" && fs.ProtectProc != "default" {
		return true
	}
	if fs.ProtectProcSubset != "" && fs.ProtectProcSubset != "default" {
		return true
	}
	if ctx.IO.LogNamespace != "" {
		return true
	}
	if ctx.DynamicUser && dirHasAnyItem(ctx) {
		return true
	}
	if fs.MountAPIVFS && fs.RootDirectory != "" {
		return true
	}
	return false
}

func dirHasAnyItem(ctx *execctx.Context) bool {
	for _, kind := range execctx.AllDirectoryKinds {
		if len(ctx.Dir(kind).Items) > 0 {
			return true
		}
	}
	return false
}

// InsistOnSandboxing decides whether ENOANO should be swallowed (downgrade
// silently) or surfaced as fatal, per §4.7: recoverable only when no
// fs-rearranging settings are present.
func InsistOnSandboxing(ctx *execctx.Context) bool {
	return NeedsMountNamespace(ctx)
}

// CloneFlags computes the clone(2) flags for the namespaces this context
// requires, beyond the mount namespace (handled separately by the
// collaborator since it may also need to downgrade on ENOANO).
func CloneFlags(ctx *execctx.Context, rt *execruntime.Entry) uintptr {
	var flags uintptr
	fs := ctx.Filesystem

	if NeedsMountNamespace(ctx) {
		flags |= CLONE_NEWNS
	}
	if fs.PrivateUsers {
		flags |= CLONE_NEWUSER
	}
	if ctx.Syscall.ProtectHostname {
		flags |= CLONE_NEWUTS
	}
	if fs.PrivateNetwork && (rt == nil || rt.NetNSSocks == nil) {
		flags |= CLONE_NEWNET
	}
	if fs.PrivateIPC && (rt == nil || rt.IPCNSSocks == nil) {
		flags |= CLONE_NEWIPC
	}
	return flags
}

// Namespacer is the collaborator contract of §4.7: given the computed
// flags, it either succeeds, returns ErrCannotNamespace, or returns
// another (fatal) error.
type Namespacer interface {
	CreateNamespaces(flags uintptr) error
}

// SyscallNamespacer is the default Namespacer, calling unshare(2) directly.
type SyscallNamespacer struct{}

func (SyscallNamespacer) CreateNamespaces(flags uintptr) error {
	if flags == 0 {
		return nil
	}
	if err := syscall.Unshare(int(flags)); err != nil {
		if err == syscall.EPERM || err == syscall.ENOSYS {
			return ErrCannotNamespace
		}
		return err
	}
	return nil
}

// SetHostname isolates the hostname in a UTS namespace, matching
// kornnellio-runc-Go/linux/namespace.go's SetHostname.
func SetHostname(hostname string) error {
	if hostname == "" {
		return nil
	}
	return syscall.Sethostname([]byte(hostname))
}
