package sandbox

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"execd/utils"
)

// Session abstracts the PAM-session collaborator (open/close + credential
// establishment). No PAM binding library appears anywhere in the retrieval
// pack (the teacher and its siblings are container/orchestration tooling
// with no login-session concern), so this is an interface the caller
// supplies a concrete cgo-backed implementation for; NoopSession is the
// only implementation shipped here, matching "no PAM service configured".
type Session interface {
	Open(serviceName, username string) error
	Close() error
	End() error
}

// NoopSession is used when PAMService is empty.
type NoopSession struct{}

func (NoopSession) Open(string, string) error { return nil }
func (NoopSession) Close() error               { return nil }
func (NoopSession) End() error                 { return nil }

// Keeper implements the PAM keeper fork/barrier protocol of §4.8: once the
// session is open, the process forks; the child drops to the target uid,
// sets PR_SET_PDEATHSIG=SIGTERM, and parks on SIGTERM before closing the
// session. The two-sided EventBarrier ensures the parent does not call
// setresuid until the keeper has re-parented, and the keeper does not
// consider the session live until the parent acknowledges.
type Keeper struct {
	PID int
}

// StartKeeper forks the keeper process. Call only from a single-threaded
// process (the pipeline's fixed-order contract, §5) since fork after
// threads exist is unsafe.
func StartKeeper(session Session, targetUID int, barrier *utils.EventBarrier) (*Keeper, error) {
	pid, _, errno := syscall.Syscall(syscall.SYS_FORK, 0, 0, 0)
	if errno != 0 {
		return nil, fmt.Errorf("fork pam keeper: %w", errno)
	}

	if pid == 0 {
		runKeeperChild(session, targetUID, barrier)
		os.Exit(0)
	}

	if err := barrier.Signal(); err != nil {
		return nil, fmt.Errorf("signal pam keeper barrier: %w", err)
	}
	if err := barrier.Wait(); err != nil {
		return nil, fmt.Errorf("wait pam keeper barrier: %w", err)
	}

	return &Keeper{PID: int(pid)}, nil
}

// runKeeperChild is the keeper side of the barrier: re-parent, drop
// privileges, then park on SIGTERM.
func runKeeperChild(session Session, targetUID int, barrier *utils.EventBarrier) {
	_, _, _ = syscall.Syscall(unix.SYS_PRCTL, unix.PR_SET_PDEATHSIG, uintptr(syscall.SIGTERM), 0)

	if targetUID >= 0 {
		_ = syscall.Setuid(targetUID)
	}

	if err := barrier.Wait(); err == nil {
		_ = barrier.Signal()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	<-sigCh

	_ = session.Close()
	_ = session.End()
}

const keyctlJoinSessionKeyring = 1

// KeyringPopulate implements step 8: join a new session keyring and
// populate the invocation-id key, used by later code to look up the
// current invocation without re-threading it through every function call.
func KeyringPopulate(invocationID string) error {
	ringID, err := keyctlJoinSession()
	if err != nil {
		return fmt.Errorf("join session keyring: %w", err)
	}
	if invocationID == "" {
		return nil
	}
	return addKey("user", "invocation_id", []byte(invocationID), ringID)
}

func keyctlJoinSession() (int, error) {
	ret, _, errno := syscall.Syscall(unix.SYS_KEYCTL, keyctlJoinSessionKeyring, 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(ret), nil
}

// addKey wraps the add_key(2) syscall to attach a payload to the given
// keyring.
func addKey(keyType, description string, payload []byte, ringID int) error {
	typeBytes := append([]byte(keyType), 0)
	descBytes := append([]byte(description), 0)
	var payloadPtr unsafe.Pointer
	if len(payload) > 0 {
		payloadPtr = unsafe.Pointer(&payload[0])
	}
	_, _, errno := syscall.Syscall6(unix.SYS_ADD_KEY,
		uintptr(unsafe.Pointer(&typeBytes[0])), uintptr(unsafe.Pointer(&descBytes[0])),
		uintptr(payloadPtr), uintptr(len(payload)), uintptr(ringID), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// UTMPRecord implements step 3's utmp bookkeeping hook. Writing a real
// utmp/wtmp entry needs struct-layout knowledge this package does not
// carry (no pack example touches /var/run/utmp), so this is left as a
// named no-op describing the contract rather than guessed binary layout.
func UTMPRecord(username, line string, pid int) error {
	return nil
}
