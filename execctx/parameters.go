package execctx

import "time"

// FdEntry pairs a passed file descriptor's number with its optional name,
// as carried in ExecParameters' incoming fd array plus parallel name array.
type FdEntry struct {
	FD   int
	Name string
}

// ParameterFlags is the flags set carried by ExecParameters.
type ParameterFlags struct {
	ApplySandboxing  bool
	ApplyTTYStdin    bool
	ApplyChroot      bool
	ControlCgroup    bool
	IsControl        bool
	CgroupDelegate   bool
	WriteCredentials bool
	SetWatchdog      bool
	NSSDynamicBypass bool
	ChownDirectories bool
	PassLogUnit      bool
}

// IdlePipe is the 4-fd idle-pipe protocol handle used by the manager's
// "boot boredom" dance (§4.9).
type IdlePipe struct {
	ReadFD        int
	WriteFD       int
	NotifyReadFD  int
	NotifyWriteFD int
}

// Parameters is the per-invocation input accompanying a Context
// (ExecParameters in the data model).
type Parameters struct {
	UnitID string

	Environment     []string
	EnvironmentFiles []string // glob patterns; "-" prefix tolerates no match

	SocketFDs  []FdEntry
	StorageFDs []FdEntry

	StdinOverrideFD  int // -1 if unset
	StdoutOverrideFD int
	StderrOverrideFD int

	ExecNotifyFD int // -1 if unset

	DirectoryPrefix [5]string // indexed by DirectoryKind

	ReceivedCredentialsDir string

	CgroupPath string

	Flags ParameterFlags

	WatchdogUSec uint64

	IdlePipe *IdlePipe

	UserLookupFD int // -1 if unset

	NotifySocketPath string

	SELinuxContextNet bool

	ConfirmSpawnTTYPath string

	// UserNSReadyFD/UserNSErrsFD carry the inherited user-namespace
	// bootstrap handshake descriptors (-1 if private users is not
	// configured); see nsbuilder.WrapUserNSBootstrap.
	UserNSReadyFD int
	UserNSErrsFD  int
}

// NewParameters returns Parameters with every optional fd set to the "unset"
// sentinel (-1).
func NewParameters(unitID string) *Parameters {
	return &Parameters{
		UnitID:           unitID,
		StdinOverrideFD:  -1,
		StdoutOverrideFD: -1,
		StderrOverrideFD: -1,
		ExecNotifyFD:     -1,
		UserLookupFD:     -1,
		UserNSReadyFD:    -1,
		UserNSErrsFD:     -1,
	}
}

// DirPrefix returns the directory prefix configured for a kind.
func (p *Parameters) DirPrefix(kind DirectoryKind) string {
	return p.DirectoryPrefix[kind]
}

// InvocationStart is a convenience timestamp helper used by callers building
// an ExecStatus record around a Parameters-driven invocation.
func InvocationStart() time.Time {
	return time.Now()
}
