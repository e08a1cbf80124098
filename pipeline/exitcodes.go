// Package pipeline orchestrates the per-invocation child steps (C1-C8) under
// the failure-step contract: every fallible step carries a symbolic exit
// code, and a failing step logs a structured record then terminates the
// child with that code rather than attempting recovery.
package pipeline

// StepCode is a symbolic exit code reported by a failing pipeline step.
// Values follow the LSB-reserved range used throughout the teacher's own
// status codes (0/1 reserved for success/generic failure), starting at 200
// to stay clear of shell and signal-derived exit statuses.
type StepCode int

const (
	ExitSuccess StepCode = 0
	ExitFailure StepCode = 1
)

const (
	ExitFDs StepCode = 200 + iota
	ExitStdin
	ExitStdout
	ExitStderr
	ExitUser
	ExitGroup
	ExitChdir
	ExitChroot
	ExitKeyring
	ExitPAM
	ExitLimits
	ExitCapabilities
	ExitSecureBits
	ExitNoNewPrivileges
	ExitAddressFamilies
	ExitSeccomp
	ExitNamespace
	ExitNetwork
	ExitCgroup
	ExitStateDirectory
	ExitCredentials
	ExitExec
	ExitConfirm
	ExitIdlePipe
)

var stepCodeNames = map[StepCode]string{
	ExitSuccess:         "SUCCESS",
	ExitFailure:         "FAILURE",
	ExitFDs:             "FDS",
	ExitStdin:           "STDIN",
	ExitStdout:          "STDOUT",
	ExitStderr:          "STDERR",
	ExitUser:            "USER",
	ExitGroup:           "GROUP",
	ExitChdir:           "CHDIR",
	ExitChroot:          "CHROOT",
	ExitKeyring:         "KEYRING",
	ExitPAM:             "PAM",
	ExitLimits:          "LIMITS",
	ExitCapabilities:    "CAPABILITIES",
	ExitSecureBits:      "SECUREBITS",
	ExitNoNewPrivileges: "NO_NEW_PRIVILEGES",
	ExitAddressFamilies: "ADDRESS_FAMILIES",
	ExitSeccomp:         "SECCOMP",
	ExitNamespace:       "NAMESPACE",
	ExitNetwork:         "NETWORK",
	ExitCgroup:          "CGROUP",
	ExitStateDirectory:  "STATE_DIRECTORY",
	ExitCredentials:     "CREDENTIALS",
	ExitExec:            "EXEC",
	ExitConfirm:         "CONFIRM",
	ExitIdlePipe:        "IDLE_PIPE",
}

// String returns the step's symbolic name, e.g. "SECCOMP".
func (c StepCode) String() string {
	if name, ok := stepCodeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}
