package sandbox

import (
	"fmt"
	"syscall"
	"unsafe"

	libseccomp "github.com/seccomp/libseccomp-golang"

	"execd/execctx"
)

// restrictedNamespaceSyscalls are the syscalls gated by restrict-namespaces
// (clone/unshare/setns, each checked against the configured bitmask via the
// CLONE_NEW* argument at the libseccomp layer).
var restrictedNamespaceSyscalls = []string{"clone", "unshare", "setns"}

// protectKernelTunablesPaths gates write access to /proc/sys, /sys via
// open/openat argument inspection; expressing that precisely needs
// argument-aware rules, which libseccomp-golang supports through
// AddRuleConditional. For syscalls with no useful argument to condition on
// (e.g. a flat "deny this syscall entirely"), a plain AddRule suffices.
var protectKernelModulesSyscalls = []string{"init_module", "finit_module", "delete_module", "create_module", "query_module"}
var protectKernelLogsSyscalls = []string{"syslog"}
var protectClockSyscalls = []string{"adjtimex", "clock_adjtime", "clock_settime", "settimeofday", "stime"}
var restrictRealtimeSchedulers = []string{"sched_setscheduler", "sched_setparam", "sched_setattr"}

// Builder assembles the seccomp filter of §4.8 step 32, applying
// sub-filters in the fixed sub-order the step documents, ending with
// syscall-filter (the explicit allow/deny list), which must be last.
type Builder struct {
	filter *libseccomp.ScmpFilter
}

// NewBuilder creates a filter with the given default action (derived from
// whether the configured syscall filter is an allow-list or a deny-list).
func NewBuilder(defaultErrno string, allowList bool) (*Builder, error) {
	def := libseccomp.ActKill
	if allowList {
		def = errnoAction(defaultErrno)
	} else {
		def = libseccomp.ActAllow
	}
	f, err := libseccomp.NewFilter(def)
	if err != nil {
		return nil, fmt.Errorf("new seccomp filter: %w", err)
	}
	return &Builder{filter: f}, nil
}

func errnoAction(name string) libseccomp.ScmpAction {
	if name == "" {
		return libseccomp.ActErrno.SetReturnCode(int16(syscall.EPERM))
	}
	if errno, ok := errnoByName[name]; ok {
		return libseccomp.ActErrno.SetReturnCode(int16(errno))
	}
	return libseccomp.ActErrno.SetReturnCode(int16(syscall.EPERM))
}

var errnoByName = map[string]syscall.Errno{
	"EPERM":   syscall.EPERM,
	"EACCES":  syscall.EACCES,
	"ENOSYS":  syscall.ENOSYS,
	"EINVAL":  syscall.EINVAL,
}

// AddArchitectures restricts the filter to the configured native
// architectures (syscall-archs sub-step).
func (b *Builder) AddArchitectures(names []string) error {
	for _, n := range names {
		arch, err := libseccomp.ArchFromString(n)
		if err != nil {
			continue // unknown arch name, tolerated
		}
		if err := b.filter.AddArch(arch); err != nil {
			return fmt.Errorf("add arch %s: %w", n, err)
		}
	}
	return nil
}

func (b *Builder) denyAll(names []string) error {
	for _, name := range names {
		call, err := libseccomp.GetSyscallFromName(name)
		if err != nil {
			continue
		}
		if err := b.filter.AddRule(call, libseccomp.ActErrno.SetReturnCode(int16(syscall.EPERM))); err != nil {
			return fmt.Errorf("deny %s: %w", name, err)
		}
	}
	return nil
}

// RestrictAddressFamilies applies the hand-written BPF fallback of §4.8's
// restrict-address-families sub-step: libseccomp-golang has no first-class
// "restrict argument 0 of socket() to an allow/deny list of AF_* values"
// helper, so this installs a small supplementary BPF program the same way
// kornnellio-runc-Go/linux/seccomp.go hand-builds its filter, gated on
// socket()'s first argument.
func RestrictAddressFamilies(families []string, allowList bool) error {
	if len(families) == 0 {
		return nil
	}
	prog, err := buildAddressFamilyFilter(families, allowList)
	if err != nil {
		return fmt.Errorf("build address-family filter: %w", err)
	}
	return installBPF(prog)
}

// restrictNamespaces implements the restrict-namespaces sub-step: clone()
// flags are a single bitmask argument, so this is expressed as a masked
// conditional rule rather than a flat deny.
func (b *Builder) restrictNamespaces(mask uint64) error {
	if mask == execctx.RestrictNamespacesInitial {
		return nil // no restriction configured
	}
	for _, name := range restrictedNamespaceSyscalls {
		call, err := libseccomp.GetSyscallFromName(name)
		if err != nil {
			continue
		}
		cond, err := libseccomp.MakeCondition(0, libseccomp.CompareMaskedEqual, mask, mask)
		if err != nil {
			return fmt.Errorf("build namespace condition for %s: %w", name, err)
		}
		if err := b.filter.AddRuleConditional(call, libseccomp.ActErrno.SetReturnCode(int16(syscall.EPERM)), []libseccomp.ScmpCondition{cond}); err != nil {
			return fmt.Errorf("restrict namespaces for %s: %w", name, err)
		}
	}
	return nil
}

// ApplyFilter implements the full sub-order of step 32 (minus the
// RestrictAddressFamilies sub-step, which is applied separately as a
// supplementary BPF program since it precedes seccomp-golang's own
// filter in fixed order but does not compose with it as a single Load).
func (b *Builder) ApplyFilter(sc *execctx.SyscallFilter) error {
	if sc.MemoryDenyWriteExecute {
		if err := b.denyAll([]string{"memfd_create"}); err != nil {
			return err
		}
		// mmap/mprotect PROT_EXEC|PROT_WRITE combinations need argument-aware
		// rules; approximated here to the syscalls with no legitimate
		// combined W+X use for services, matching the teacher's own
		// "simple rule, no argument checking" level of fidelity.
	}
	if sc.RestrictRealtime {
		if err := b.denyAll(restrictRealtimeSchedulers); err != nil {
			return err
		}
	}
	if sc.RestrictSUIDSGID {
		if err := b.denyAll([]string{"chmod", "fchmod", "fchmodat"}); err != nil {
			return err
		}
	}
	if err := b.restrictNamespaces(sc.RestrictNamespaces); err != nil {
		return err
	}
	if sc.ProtectKernelTunables {
		// Write access to /proc/sys,/sys is argument-gated (path-based);
		// left to the mount namespace's read-only bind mounts (nsbuilder),
		// matching spec.md's own framing of protect-kernel-tunables as a
		// filesystem+seccomp combination rather than seccomp alone.
	}
	if sc.ProtectKernelModules {
		if err := b.denyAll(protectKernelModulesSyscalls); err != nil {
			return err
		}
	}
	if sc.ProtectKernelLogs {
		if err := b.denyAll(protectKernelLogsSyscalls); err != nil {
			return err
		}
	}
	if sc.ProtectClock {
		if err := b.denyAll(protectClockSyscalls); err != nil {
			return err
		}
	}
	if err := b.AddArchitectures(sc.Architectures); err != nil {
		return err
	}

	// syscall-filter: the explicit named allow/deny list, applied last.
	for name, action := range sc.Filter {
		call, err := libseccomp.GetSyscallFromName(name)
		if err != nil {
			continue
		}
		act := libseccomp.ActErrno.SetReturnCode(int16(syscall.EPERM))
		if action == "kill" {
			act = libseccomp.ActKill
		} else if errno, ok := errnoByName[action]; ok {
			act = libseccomp.ActErrno.SetReturnCode(int16(errno))
		}
		if err := b.filter.AddRule(call, act); err != nil {
			return fmt.Errorf("syscall-filter rule for %s: %w", name, err)
		}
	}

	if err := b.filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

// Release frees the underlying libseccomp filter object.
func (b *Builder) Release() {
	b.filter.Release()
}

// --- hand-written BPF fallback for address-family restriction ---

const (
	bpfLD  = 0x00
	bpfJMP = 0x05
	bpfRET = 0x06
	bpfW   = 0x00
	bpfABS = 0x20
	bpfJEQ = 0x10
	bpfK   = 0x00
)

const (
	seccompRetKillProcess = 0x80000000
	seccompRetAllow       = 0x7fff0000
	seccompRetErrno       = 0x00050000
	seccompModeFilter     = 2
	prSetSeccomp          = 22
	prSetNoNewPrivs       = 38
)

type sockFilter struct {
	Code uint16
	Jt   uint8
	Jf   uint8
	K    uint32
}

type sockFprog struct {
	Len    uint16
	Filter *sockFilter
}

// socket() syscall number on x86_64; restrict-address-families is only
// meaningful on architectures with a unified socket() entry point.
const syscallSocketNRx86_64 = 41

var addressFamilies = map[string]uint32{
	"AF_UNIX":  1,
	"AF_LOCAL": 1,
	"AF_INET":  2,
	"AF_INET6": 10,
	"AF_NETLINK": 16,
	"AF_PACKET":  17,
	"AF_VSOCK":   40,
}

func buildAddressFamilyFilter(families []string, allowList bool) ([]sockFilter, error) {
	allowed := make(map[uint32]bool, len(families))
	for _, name := range families {
		if af, ok := addressFamilies[name]; ok {
			allowed[af] = true
		}
	}

	var prog []sockFilter
	prog = append(prog, bpfStmt(bpfLD|bpfW|bpfABS, 0)) // load syscall nr
	prog = append(prog, bpfJump(bpfJMP|bpfJEQ|bpfK, syscallSocketNRx86_64, 0, 1))
	prog = append(prog, bpfStmt(bpfRET|bpfK, seccompRetAllow)) // non-socket syscalls fall through to the main filter

	prog = append(prog, bpfStmt(bpfLD|bpfW|bpfABS, 16)) // seccomp_data.args[0]

	i := 0
	for af := range allowed {
		i++
		jt := uint8(0)
		jf := uint8(1)
		if !allowList {
			jt, jf = 1, 0
		}
		prog = append(prog, bpfJump(bpfJMP|bpfJEQ|bpfK, af, jt, jf))
		action := uint32(seccompRetErrno)
		if allowList {
			action = seccompRetAllow
		}
		prog = append(prog, bpfStmt(bpfRET|bpfK, action))
	}

	def := uint32(seccompRetErrno)
	if !allowList {
		def = seccompRetAllow
	}
	prog = append(prog, bpfStmt(bpfRET|bpfK, def))

	return prog, nil
}

func bpfStmt(code uint16, k uint32) sockFilter {
	return sockFilter{Code: code, K: k}
}

func bpfJump(code uint16, k uint32, jt, jf uint8) sockFilter {
	return sockFilter{Code: code, Jt: jt, Jf: jf, K: k}
}

func installBPF(prog []sockFilter) error {
	if len(prog) == 0 {
		return nil
	}
	if _, _, errno := syscall.Syscall(syscall.SYS_PRCTL, prSetNoNewPrivs, 1, 0); errno != 0 {
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %v", errno)
	}
	fp := sockFprog{Len: uint16(len(prog)), Filter: &prog[0]}
	if _, _, errno := syscall.Syscall(syscall.SYS_PRCTL, prSetSeccomp, seccompModeFilter, uintptr(unsafe.Pointer(&fp))); errno != 0 {
		return fmt.Errorf("prctl(PR_SET_SECCOMP): %v", errno)
	}
	return nil
}
