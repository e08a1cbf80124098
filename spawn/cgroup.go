package spawn

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const cgroupRoot = "/sys/fs/cgroup"

// Cgroup is an attachment-only handle onto a cgroup v2 control group.
// Resource-limit application (memory.max, cpu.max, ...) is out of scope;
// this type only creates the directory and moves pids into it, matching
// the manager's own delegation model rather than a resource manager's.
type Cgroup struct {
	path string
}

// NewCgroup opens (creating if necessary) the cgroup at a path relative to
// /sys/fs/cgroup, or an absolute path if cgroupPath already is one.
func NewCgroup(cgroupPath string) (*Cgroup, error) {
	fullPath := cgroupPath
	if !filepath.IsAbs(cgroupPath) {
		fullPath = filepath.Join(cgroupRoot, cgroupPath)
	}
	if err := os.MkdirAll(fullPath, 0755); err != nil {
		return nil, fmt.Errorf("create cgroup directory: %w", err)
	}
	return &Cgroup{path: fullPath}, nil
}

// Path returns the cgroup's filesystem path.
func (c *Cgroup) Path() string {
	return c.path
}

// AddProcess moves a pid into the cgroup. Idempotent: moving a pid that is
// already a member is a no-op from the kernel's perspective.
func (c *Cgroup) AddProcess(pid int) error {
	procsPath := filepath.Join(c.path, "cgroup.procs")
	return os.WriteFile(procsPath, []byte(strconv.Itoa(pid)), 0644)
}

// EnsureControlSubcgroup creates (or opens) the ".control" subcgroup used
// for control commands (ExecStartPre et al.) when cgroup delegation is on,
// so such commands don't share accounting with the main payload.
func EnsureControlSubcgroup(parentPath string) (*Cgroup, error) {
	return NewCgroup(filepath.Join(parentPath, ".control"))
}
