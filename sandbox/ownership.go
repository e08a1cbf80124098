package sandbox

import (
	"fmt"
	"os"
)

// ApplyTerminalOwnership implements step 4: chown the acquired tty (stdin,
// once stdio.Resolve has re-homed it onto fd 0) to the target service uid
// so the invoked process can actually use the terminal it was handed.
// A no-op uid/gid of -1 leaves ownership unchanged, matching os.Chown's own
// "-1 means don't change" convention.
func ApplyTerminalOwnership(ttyPath string, uid, gid int) error {
	if ttyPath == "" || uid < 0 {
		return nil
	}
	if err := os.Chown(ttyPath, uid, gid); err != nil {
		return fmt.Errorf("chown tty %s: %w", ttyPath, err)
	}
	return nil
}

// ApplyCgroupDelegationOwnership implements step 5: when cgroup delegation
// is requested, chown the unit's own cgroup directory (not the ".control"
// subcgroup spawn.EnsureControlSubcgroup creates pre-fork) to the service
// uid so the delegated process can manage its own subtree_control and
// cgroup.procs.
func ApplyCgroupDelegationOwnership(cgroupPath string, uid, gid int) error {
	if cgroupPath == "" || uid < 0 {
		return nil
	}
	entries := []string{
		cgroupPath,
		cgroupPath + "/cgroup.procs",
		cgroupPath + "/cgroup.subtree_control",
	}
	for _, e := range entries {
		if err := os.Chown(e, uid, gid); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("chown cgroup %s: %w", e, err)
		}
	}
	return nil
}
