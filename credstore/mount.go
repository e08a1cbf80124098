package credstore

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"execd/execctx"

	cerrors "execd/execerrors"
)

// Mounter prepares a confined location for a unit's credential workspace
// and publishes the resolved credentials into it, per the three-tier
// strategy of §4.5 step 2.
type Mounter struct {
	UnitID     string
	ServiceUID int
	ServiceGID int
	MustMount  bool
}

// Publish materialises creds into dir using the write protocol (temp name,
// fchmod 0400, renameat) and, when a location requiring isolation is in
// play, mounts a private ramfs/tmpfs over dir before writing into it and
// remounts it nodev/nosuid/noexec/ro afterwards.
func (m *Mounter) Publish(dir string, creds []execctx.Credential) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrDirectory, "create credential dir", dir)
	}

	mounted, err := m.mountWorkspace(dir)
	if err != nil {
		if m.MustMount {
			return cerrors.WrapWithDetail(err, cerrors.ErrDirectory, "mount credential workspace", dir)
		}
		// Tier 3: plain-directory fallback.
		mounted = false
	}

	for _, c := range creds {
		if err := writeCredentialAtomic(dir, c.ID, c.Bytes, m.ServiceUID, m.ServiceGID); err != nil {
			return cerrors.WrapWithDetail(err, cerrors.ErrCredential, "write credential", c.ID)
		}
	}

	if mounted {
		if err := remountLocked(dir); err != nil {
			return cerrors.WrapWithDetail(err, cerrors.ErrDirectory, "remount credential workspace", dir)
		}
	} else {
		if err := os.Chmod(dir, 0700); err != nil {
			return err
		}
	}

	return nil
}

// mountWorkspace attempts tier 1 (private mount namespace + ramfs, falling
// back to tmpfs) and reports whether a mount now shadows dir. The caller is
// assumed to already be running inside a unit-private mount namespace, set
// up by nsbuilder, so this is a plain mount(2) call, not unshare+mount.
func (m *Mounter) mountWorkspace(dir string) (bool, error) {
	if err := syscall.Mount("ramfs", dir, "ramfs", syscall.MS_NOSUID|syscall.MS_NODEV, "mode=0700"); err == nil {
		return true, nil
	}
	if err := syscall.Mount("tmpfs", dir, "tmpfs", syscall.MS_NOSUID|syscall.MS_NODEV, "mode=0700,size=16m"); err == nil {
		return true, nil
	}
	return false, fmt.Errorf("neither ramfs nor tmpfs could be mounted on %s", dir)
}

// remountLocked applies the final nodev/nosuid/noexec/ro remount of §4.5
// step 2's last sentence.
func remountLocked(dir string) error {
	flags := uintptr(syscall.MS_REMOUNT | syscall.MS_BIND | syscall.MS_NODEV | syscall.MS_NOSUID | syscall.MS_NOEXEC | syscall.MS_RDONLY)
	return syscall.Mount(dir, dir, "", flags, "")
}

// writeCredentialAtomic implements the temp-name + fchmod(0400) + renameat
// write protocol: the credential is never visible at its final name with
// anything but its final mode and owner.
func writeCredentialAtomic(dir, id string, data []byte, uid, gid int) error {
	final := filepath.Join(dir, id)
	tmp := filepath.Join(dir, "."+id+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write credential %s: %w", id, err)
	}
	if err := f.Chmod(0400); err != nil {
		f.Close()
		return fmt.Errorf("chmod credential %s: %w", id, err)
	}
	if uid >= 0 && gid >= 0 {
		if err := f.Chown(uid, gid); err != nil {
			f.Close()
			return fmt.Errorf("chown credential %s: %w", id, err)
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("rename credential %s into place: %w", id, err)
	}
	return nil
}
