package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// deviceNode is one minimal device to populate a private /dev.
type deviceNode struct {
	name  string
	major uint32
	minor uint32
	mode  os.FileMode
}

var privateDevDefaults = []deviceNode{
	{"null", 1, 3, 0666},
	{"zero", 1, 5, 0666},
	{"full", 1, 7, 0666},
	{"random", 1, 8, 0666},
	{"urandom", 1, 9, 0666},
	{"tty", 5, 0, 0666},
}

// SetupPrivateDevices implements step 32's private-devices sub-step:
// a minimal tmpfs-backed /dev containing only the handful of pseudo
// devices services legitimately need, with /dev/console, /dev/pts, and
// /dev/shm for console/PTY/shared-memory use. Adapted from
// kornnellio-runc-Go/linux/devices.go's SetupDevTmpfs, trimmed to the
// subset this pipeline actually needs (no full OCI LinuxDevice list,
// since there is no per-device config surface in this spec).
func SetupPrivateDevices(rootfs string) error {
	devPath := "/dev"
	if rootfs != "" {
		devPath = filepath.Join(rootfs, "dev")
	}

	if err := os.MkdirAll(devPath, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", devPath, err)
	}
	if err := syscall.Mount("tmpfs", devPath, "tmpfs",
		syscall.MS_NOSUID|syscall.MS_STRICTATIME, "mode=755,size=65536k"); err != nil {
		return fmt.Errorf("mount tmpfs on %s: %w", devPath, err)
	}

	for _, dev := range privateDevDefaults {
		path := filepath.Join(devPath, dev.name)
		if err := createDeviceNode(path, dev); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}

	ptsPath := filepath.Join(devPath, "pts")
	if err := os.MkdirAll(ptsPath, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", ptsPath, err)
	}
	if err := syscall.Mount("devpts", ptsPath, "devpts",
		syscall.MS_NOSUID|syscall.MS_NOEXEC, "newinstance,ptmxmode=0666,mode=0620"); err != nil {
		return fmt.Errorf("mount devpts: %w", err)
	}

	ptmxPath := filepath.Join(devPath, "ptmx")
	os.Remove(ptmxPath)
	if err := os.Symlink("pts/ptmx", ptmxPath); err != nil {
		return fmt.Errorf("symlink %s: %w", ptmxPath, err)
	}

	shmPath := filepath.Join(devPath, "shm")
	if err := os.MkdirAll(shmPath, 01777); err != nil {
		return fmt.Errorf("mkdir %s: %w", shmPath, err)
	}
	if err := syscall.Mount("shm", shmPath, "tmpfs",
		syscall.MS_NOSUID|syscall.MS_NOEXEC|syscall.MS_NODEV, "mode=1777,size=65536k"); err != nil {
		return fmt.Errorf("mount %s: %w", shmPath, err)
	}

	return nil
}

func createDeviceNode(path string, dev deviceNode) error {
	devt := int(unixMakedev(dev.major, dev.minor))
	if err := syscall.Mknod(path, uint32(dev.mode)|syscall.S_IFCHR, devt); err != nil {
		return err
	}
	return os.Chmod(path, dev.mode)
}

func unixMakedev(major, minor uint32) uint64 {
	return uint64(minor&0xff) | uint64(major&0xfff)<<8 |
		uint64(minor&^0xff)<<12 | uint64(major&^0xfff)<<32
}
