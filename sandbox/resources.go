package sandbox

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"execd/execctx"
)

// Rlimit indices mirror execctx.Resources.Rlimits: RLIMIT_CPU=0 through
// RLIMIT_RTTIME=15, matching the kernel's RLIMIT_* ordering.
var rlimitResource = [16]int{
	unix.RLIMIT_CPU, unix.RLIMIT_FSIZE, unix.RLIMIT_DATA, unix.RLIMIT_STACK,
	unix.RLIMIT_CORE, unix.RLIMIT_RSS, unix.RLIMIT_NPROC, unix.RLIMIT_NOFILE,
	unix.RLIMIT_MEMLOCK, unix.RLIMIT_AS, unix.RLIMIT_LOCKS, unix.RLIMIT_SIGPENDING,
	unix.RLIMIT_MSGQUEUE, unix.RLIMIT_NICE, unix.RLIMIT_RTPRIO, unix.RLIMIT_RTTIME,
}

// ApplyProcessTuning implements step 1: OOM-score, coredump filter, nice,
// scheduler, cpu-affinity, NUMA policy, ioprio, timer-slack — pure
// prctl/setpriority/sched_* calls usable at any privilege level.
func ApplyProcessTuning(r *execctx.Resources) error {
	if err := setOOMScoreAdjust(r.OOMScoreAdjust); err != nil {
		return fmt.Errorf("oom_score_adj: %w", err)
	}
	if r.CoredumpFilter != 0 {
		if err := setCoredumpFilter(r.CoredumpFilter); err != nil {
			return fmt.Errorf("coredump_filter: %w", err)
		}
	}
	if r.Nice != 0 {
		if err := unix.Setpriority(unix.PRIO_PROCESS, 0, r.Nice); err != nil {
			return fmt.Errorf("setpriority: %w", err)
		}
	}
	if r.CPUSchedPolicy != 0 {
		if err := setScheduler(r.CPUSchedPolicy, r.CPUSchedPriority, r.CPUSchedResetOnFork); err != nil {
			return fmt.Errorf("sched_setscheduler: %w", err)
		}
	}
	if len(r.CPUAffinity) > 0 {
		if err := setCPUAffinity(r.CPUAffinity); err != nil {
			return fmt.Errorf("sched_setaffinity: %w", err)
		}
	}
	if r.NUMAPolicy != "" && r.NUMAPolicy != "default" {
		if err := setNUMAPolicy(r.NUMAPolicy, r.NUMAMask); err != nil {
			return fmt.Errorf("set_mempolicy: %w", err)
		}
	}
	if r.IOPrioClass != 0 {
		if err := setIOPrio(r.IOPrioClass, r.IOPrioPriority); err != nil {
			return fmt.Errorf("ioprio_set: %w", err)
		}
	}
	if r.TimerSlackNSec != execctx.TimerSlackInfinity {
		if err := setTimerSlack(r.TimerSlackNSec); err != nil {
			return fmt.Errorf("timer slack: %w", err)
		}
	}
	return nil
}

func setOOMScoreAdjust(v int) error {
	return os.WriteFile("/proc/self/oom_score_adj", []byte(strconv.Itoa(v)), 0644)
}

func setCoredumpFilter(mask uint32) error {
	return os.WriteFile("/proc/self/coredump_filter", []byte(fmt.Sprintf("%x", mask)), 0644)
}

func setScheduler(policy, priority int, resetOnFork bool) error {
	flags := policy
	if resetOnFork {
		flags |= schedResetOnFork
	}
	param := unix.SchedParam{Priority: int32(priority)}
	_, _, errno := syscall.Syscall(unix.SYS_SCHED_SETSCHEDULER, 0, uintptr(flags), uintptr(unsafe.Pointer(&param)))
	if errno != 0 {
		return errno
	}
	return nil
}

const schedResetOnFork = 0x40000000

func setCPUAffinity(cpus []int) error {
	var set unix.CPUSet
	set.Zero()
	for _, c := range cpus {
		set.Set(c)
	}
	return unix.SchedSetaffinity(0, &set)
}

func setNUMAPolicy(policy string, mask []int) error {
	mode, ok := numaModes[policy]
	if !ok {
		return fmt.Errorf("unknown NUMA policy %q", policy)
	}
	var nodemask uint64
	for _, n := range mask {
		if n >= 0 && n < 64 {
			nodemask |= 1 << uint(n)
		}
	}
	_, _, errno := syscall.Syscall6(unix.SYS_SET_MEMPOLICY, uintptr(mode), uintptr(unsafe.Pointer(&nodemask)), 64, 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

var numaModes = map[string]int{
	"default":  0,
	"preferred": 1,
	"bind":      2,
	"interleave": 3,
	"local":     4,
}

func setIOPrio(class, priority int) error {
	ioprio := (class << 13) | (priority & 0x1fff)
	_, _, errno := syscall.Syscall(unix.SYS_IOPRIO_SET, 1 /* IOPRIO_WHO_PROCESS */, 0, uintptr(ioprio))
	if errno != 0 {
		return errno
	}
	return nil
}

const prSetTimerslack = 29

func setTimerSlack(nsec uint64) error {
	_, _, errno := syscall.Syscall(syscall.SYS_PRCTL, prSetTimerslack, uintptr(nsec), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// ApplyPersonality implements step 2. "invalid" is the unset sentinel.
func ApplyPersonality(name string) error {
	if name == "" || name == "invalid" {
		return nil
	}
	persona, ok := personalities[name]
	if !ok {
		return fmt.Errorf("unknown personality %q", name)
	}
	_, _, errno := syscall.Syscall(unix.SYS_PERSONALITY, uintptr(persona), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

var personalities = map[string]uintptr{
	"linux":   0x0000,
	"linux32": 0x0008,
}

// ApplyRlimits implements step 9 (and the additional rlimits of step 20).
func ApplyRlimits(r *execctx.Resources) error {
	for i, limit := range r.Rlimits {
		if limit == nil {
			continue
		}
		res := rlimitResource[i]
		rl := unix.Rlimit{Cur: uint64(*limit), Max: uint64(*limit)}
		if err := unix.Setrlimit(res, &rl); err != nil {
			return fmt.Errorf("setrlimit(%d): %w", res, err)
		}
	}
	return nil
}

// ApplyRestrictRealtimeRTPrio implements step 20's RTPRIO=0 follow-up when
// restrict-realtime is set and no explicit RLIMIT_RTPRIO was configured.
func ApplyRestrictRealtimeRTPrio(r *execctx.Resources, restrictRealtime bool) error {
	if !restrictRealtime || r.Rlimits[14] != nil {
		return nil
	}
	zero := int64(0)
	rl := unix.Rlimit{Cur: uint64(zero), Max: uint64(zero)}
	return unix.Setrlimit(unix.RLIMIT_RTPRIO, &rl)
}

// ApplyUmask sets the process umask.
func ApplyUmask(mask uint32) {
	syscall.Umask(int(mask))
}
