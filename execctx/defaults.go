package execctx

// NewDefaultContext returns a Context with the documented C11 defaults:
// umask 0022, SCHED_OTHER, syslog priority LOG_DAEMON|LOG_INFO, level-prefix
// on, timer-slack "infinity" sentinel, personality "invalid" sentinel,
// directory mode 0755 for all five kinds, capability-bounding-set "all",
// restrict-namespaces "initial" sentinel, tty rows/cols "max" sentinel, and
// a reset NUMA policy.
func NewDefaultContext() *Context {
	ctx := &Context{
		Resources: Resources{
			CPUSchedPolicy: SchedOther,
			NUMAPolicy:     "default",
			TimerSlackNSec: TimerSlackInfinity,
			Umask:          0022,
		},
		Privileges: Privileges{
			CapabilityBoundingSet: []string{"~all"},
			Personality:           "invalid",
		},
		Syscall: SyscallFilter{
			RestrictNamespaces: RestrictNamespacesInitial,
		},
		IO: IOSpec{
			SyslogPriority: LogDaemon | LogInfo,
			TTYRows:        TTYSizeMax,
			TTYCols:        TTYSizeMax,
		},
	}
	for i := range ctx.Directories {
		ctx.Directories[i] = NewDirectorySpec()
	}
	return ctx
}

// Scheduling policy constants (sched_setscheduler POLICY_* values).
const (
	SchedOther = 0
	SchedFIFO  = 1
	SchedRR    = 2
)

// Syslog facility/priority constants used for the IOSpec.SyslogPriority
// default (LOG_DAEMON|LOG_INFO).
const (
	LogDaemon = 3 << 3
	LogInfo   = 6
)
