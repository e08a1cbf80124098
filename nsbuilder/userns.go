package nsbuilder

import (
	"fmt"
	"os"
	"strconv"

	cerrors "execd/execerrors"
	"execd/utils"
)

// UIDMapping is one line of a uid_map/gid_map file.
type UIDMapping struct {
	ContainerID int64
	HostID      int64
	Size        int64
}

// UserNSBootstrap drives the user-namespace bootstrap sub-protocol of
// §4.7: the parent opens CLONE_NEWUSER (already reflected in the child's
// clone flags by the time this runs), and a cooperating helper in the
// original namespace writes uid_map/gid_map/setgroups via /proc/<pid>/…
// once the child signals readiness over an eventfd; errors from the
// helper are reported back over a pipe.
type UserNSBootstrap struct {
	Ready *utils.EventBarrier
	Errs  *utils.SyncPipe
}

// NewUserNSBootstrap allocates the eventfd and pipe used by the protocol.
func NewUserNSBootstrap() (*UserNSBootstrap, error) {
	ready, err := utils.NewEventBarrier()
	if err != nil {
		return nil, fmt.Errorf("userns bootstrap eventfd: %w", err)
	}
	errs, err := utils.NewSyncPipe()
	if err != nil {
		ready.Close()
		return nil, fmt.Errorf("userns bootstrap pipe: %w", err)
	}
	return &UserNSBootstrap{Ready: ready, Errs: errs}, nil
}

// WrapUserNSBootstrap reconstructs the child side of the protocol from
// two already-open, inherited file descriptors (the spawner passes them
// across the fork+exec boundary via ExtraFiles rather than a raw fork, so
// the child cannot reuse the parent's *UserNSBootstrap value directly).
func WrapUserNSBootstrap(readyFD, errsFD int) *UserNSBootstrap {
	return &UserNSBootstrap{
		Ready: utils.WrapEventBarrier(readyFD),
		Errs:  utils.WrapSyncPipeParent(errsFD),
	}
}

// ChildSignalReady is called by the child once it has entered the new user
// namespace and is waiting for its id mappings to be written.
func (b *UserNSBootstrap) ChildSignalReady() error {
	return b.Ready.Signal()
}

// ChildWaitMapped blocks until the parent-side helper has written the
// mappings (or reports an error over the pipe).
func (b *UserNSBootstrap) ChildWaitMapped() error {
	return b.Errs.WaitWithError()
}

// WriteMappings implements the actual /proc/<pid>/{uid,gid}_map +
// setgroups write, invoked by the cooperating helper after observing the
// ready signal. The single-line mapping "OUID OUID 1" is always present;
// "UID UID 1" is appended iff haveSetUID (CAP_SETUID effective) is true.
func WriteMappings(pid int, outsideUID, outsideGID, targetUID, targetGID int, haveSetUID, haveSetGID bool) error {
	if err := writeIDMap(pid, "uid_map", outsideUID, targetUID, haveSetUID); err != nil {
		return cerrors.Wrap(err, cerrors.ErrNamespace, "write uid_map")
	}

	// setgroups must be disabled before gid_map unless CAP_SETGID is held.
	setgroupsPath := "/proc/" + strconv.Itoa(pid) + "/setgroups"
	if !haveSetGID {
		_ = os.WriteFile(setgroupsPath, []byte("deny"), 0644)
	}

	if err := writeIDMap(pid, "gid_map", outsideGID, targetGID, haveSetGID); err != nil {
		return cerrors.Wrap(err, cerrors.ErrNamespace, "write gid_map")
	}
	return nil
}

func writeIDMap(pid int, file string, outsideID, targetID int, appendTarget bool) error {
	path := "/proc/" + strconv.Itoa(pid) + "/" + file
	content := fmt.Sprintf("%d %d 1\n", outsideID, outsideID)
	if appendTarget && targetID != outsideID {
		content += fmt.Sprintf("%d %d 1\n", targetID, targetID)
	}
	return os.WriteFile(path, []byte(content), 0644)
}

// Close releases the bootstrap's resources.
func (b *UserNSBootstrap) Close() {
	b.Ready.Close()
	b.Errs.Close()
}
