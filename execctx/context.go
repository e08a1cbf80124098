// Package execctx defines the frozen, caller-owned description of how a
// program should be executed (ExecContext) and the per-invocation inputs
// that accompany it (ExecParameters), plus the cross-command observation
// record (ExecStatus) and the credential value type.
//
// Context lifecycle (construction with documented defaults, diagnostic
// dump, load/save) corresponds to component C11 of the execution-context
// assembly pipeline; the struct field groups correspond to the pipeline's
// data model.
package execctx

// MountImage describes a root filesystem image and its verity parameters.
type MountImage struct {
	Source         string
	Destination    string
	Options        []string
	VerityRootHash string
	VerityData     string
}

// BindMount describes one bind-mount to be applied inside the service's
// mount namespace.
type BindMount struct {
	Source        string
	Destination   string
	ReadOnly      bool
	Recursive     bool
	IgnoreMissing bool
	NoSuid        bool
}

// TmpfsMount describes a tmpfs to be mounted at a destination.
type TmpfsMount struct {
	Destination string
	Size        int64
	Mode        uint32
}

// ExtensionImage describes a system/configuration extension image overlaid
// onto the root filesystem.
type ExtensionImage struct {
	Source      string
	ReadOnly    bool
	Reconcile   string
	Environment []string
}

// ProtectMode is a tri-state applied to ProtectHome/ProtectSystem-style
// settings: off, on (read-only), or strict (full isolation).
type ProtectMode int

const (
	ProtectOff ProtectMode = iota
	ProtectReadOnly
	ProtectStrict
)

// FilesystemView groups every path/mount/namespace-shaping field of the
// context.
type FilesystemView struct {
	RootDirectory      string
	RootImage          *MountImage
	ReadOnlyPaths      []string
	ReadWritePaths     []string
	InaccessiblePaths  []string
	ExecPaths          []string
	NoExecPaths        []string
	BindMounts         []BindMount
	TmpfsMounts        []TmpfsMount
	MountImages        []MountImage
	ExtensionImages    []ExtensionImage
	ExtensionDirs      []string
	ProtectHome        ProtectMode
	ProtectSystem      ProtectMode
	ProtectProc        string
	ProtectProcSubset  string
	PrivateTmp         bool
	PrivateDevices     bool
	PrivateNetwork     bool
	PrivateIPC         bool
	PrivateUsers       bool
	MountAPIVFS        bool
	MountPropagation   string
	NamespacePath      string // explicit netns path, if joining rather than creating
}

// DirectoryKind identifies one of the 5 per-service directory types.
type DirectoryKind int

const (
	DirRuntime DirectoryKind = iota
	DirState
	DirCache
	DirLogs
	DirConfiguration
)

// String renders a directory kind's environment-variable-friendly name.
func (k DirectoryKind) String() string {
	switch k {
	case DirRuntime:
		return "Runtime"
	case DirState:
		return "State"
	case DirCache:
		return "Cache"
	case DirLogs:
		return "Logs"
	case DirConfiguration:
		return "Configuration"
	default:
		return "Unknown"
	}
}

// AllDirectoryKinds lists every kind in canonical order.
var AllDirectoryKinds = []DirectoryKind{DirRuntime, DirState, DirCache, DirLogs, DirConfiguration}

// DirectoryItem is one requested path within a directory kind's namespace.
type DirectoryItem struct {
	Path       string
	Symlinks   []string
	OnlyCreate bool
}

// DirectorySpec groups the configuration for a single directory kind.
type DirectorySpec struct {
	Mode         uint32
	PreserveMode bool
	Items        []DirectoryItem
}

// NewDirectorySpec returns a DirectorySpec with the documented default mode
// (0755) and no items.
func NewDirectorySpec() DirectorySpec {
	return DirectorySpec{Mode: 0755}
}

// Privileges groups capability, secure-bits, MAC, and personality fields.
type Privileges struct {
	CapabilityBoundingSet []string // capability names, or {"~all"} sentinel handled by caller
	CapabilityAmbientSet  []string
	SecureBits            uint
	NoNewPrivileges       bool
	SELinuxContext        string
	SELinuxIgnore         bool
	AppArmorProfile       string
	AppArmorIgnore        bool
	SmackLabel            string
	SmackIgnore           bool
	KeyringMode           string
	Personality           string
	LockPersonality       bool
}

// SyscallFilter groups the seccomp-related fields.
type SyscallFilter struct {
	Filter                map[string]string // syscall name -> "kill" | errno name
	AllowList             bool
	DefaultErrno          string
	Architectures         []string
	Log                   map[string]string
	LogAllowList          bool
	RestrictNamespaces    uint64 // bitmask of CLONE_NEW* sentinel "initial" = ^uint64(0)
	RestrictAddressFamilies []string
	RestrictAddressFamiliesAllowList bool
	RestrictFilesystems   []string
	MemoryDenyWriteExecute bool
	RestrictRealtime      bool
	RestrictSUIDSGID      bool
	ProtectKernelTunables bool
	ProtectKernelModules  bool
	ProtectKernelLogs     bool
	ProtectClock          bool
	ProtectHostname       bool
}

// RestrictNamespacesInitial is the sentinel meaning "no restriction
// configured" for RestrictNamespaces.
const RestrictNamespacesInitial = ^uint64(0)

// Resources groups rlimits, scheduling, NUMA, and related fields.
type Resources struct {
	Rlimits          [16]*int64 // index by RLIMIT_* constant; nil = unset
	Nice             int
	IOPrioClass      int
	IOPrioPriority   int
	CPUSchedPolicy   int
	CPUSchedPriority int
	CPUSchedResetOnFork bool
	CPUAffinity      []int
	NUMAPolicy       string
	NUMAMask         []int
	OOMScoreAdjust   int
	CoredumpFilter   uint32
	TimerSlackNSec   uint64
	Umask            uint32
}

// TimerSlackInfinity is the "unset" sentinel for TimerSlackNSec.
const TimerSlackInfinity = ^uint64(0)

// StdioVariant enumerates the tagged variants for std_input/std_output/std_error.
type StdioVariant int

const (
	IOInherit StdioVariant = iota
	IONull
	IOTTY
	IOTTYForce
	IOTTYFail
	IOSocket
	IONamedFD
	IOData
	IOFile
	IOFileAppend
	IOFileTruncate
	IOKmsg
	IOJournal
	IOKmsgConsole
	IOJournalConsole
)

// IOSpec groups every I/O-wiring field of the context.
type IOSpec struct {
	StdInput  StdioVariant
	StdOutput StdioVariant
	StdError  StdioVariant

	TTYPath       string
	TTYReset      bool
	TTYVHangup    bool
	TTYDisallocate bool
	TTYRows       int // -1 == "max" sentinel
	TTYCols       int

	StdinData []byte

	StdioFilePaths [3]string // indexed by fd number, only meaningful for *File* variants
	StdioFDNames   [3]string

	SyslogIdentifier string
	SyslogPriority   int
	LogNamespace     string
	LogRateLimitIntervalUSec uint64
	LogRateLimitBurst int
}

// TTYSizeMax is the "max" sentinel for TTYRows/TTYCols.
const TTYSizeMax = -1

// CredentialSpec describes one requested set- or load-credential.
type CredentialSpec struct {
	ID        string
	Data      []byte // for set-credential
	Path      string // for load-credential
	Encrypted bool
}

// Context is the immutable, caller-owned description of a desired runtime
// (ExecContext in the data model).
type Context struct {
	// Identity
	User            string
	Group           string
	SupplementaryGroups []string
	DynamicUser     bool
	PAMService      string

	Filesystem FilesystemView
	Directories [5]DirectorySpec // indexed by DirectoryKind
	Privileges Privileges
	Syscall    SyscallFilter
	Resources  Resources
	IO         IOSpec

	SetCredentials  []CredentialSpec
	LoadCredentials []CredentialSpec
}

// Dir returns the directory spec for a kind.
func (c *Context) Dir(kind DirectoryKind) *DirectorySpec {
	return &c.Directories[kind]
}
