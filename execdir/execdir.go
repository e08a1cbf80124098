// Package execdir implements component C4 of the execution-context
// assembly pipeline: creating, owning, and symlinking the 5 kinds of
// per-service directories, including the private/ hosting scheme used by
// dynamic-user services.
package execdir

import (
	"fmt"
	"os"
	"path/filepath"

	"execd/execctx"

	cerrors "execd/execerrors"
)

const privateDirMode = 0700

// Manager applies the exec-directory algorithm of §4.4 for one service.
type Manager struct {
	Prefixes [5]string // indexed by execctx.DirectoryKind
	UID, GID int
	Dynamic  bool
}

// Apply runs step 1-5 of §4.4 for every directory kind and item in ctx.
// needMountNS controls whether declared symlinks are created now (no
// namespace case) or deferred (see DeferredSymlinks).
func (m *Manager) Apply(ctx *execctx.Context, needMountNS bool) ([]SymlinkPlan, error) {
	var deferred []SymlinkPlan

	for _, kind := range execctx.AllDirectoryKinds {
		spec := ctx.Dir(kind)
		prefix := m.Prefixes[kind]
		if prefix == "" {
			continue
		}

		for _, item := range spec.Items {
			plans, err := m.applyItem(kind, prefix, spec, item, needMountNS)
			if err != nil {
				return nil, cerrors.WrapWithDetail(err, cerrors.ErrDirectory, "apply exec directory",
					fmt.Sprintf("%s:%s", kind, item.Path))
			}
			deferred = append(deferred, plans...)
		}
	}

	return deferred, nil
}

// SymlinkPlan is a (src -> dst) pair deferred to post-namespace setup.
type SymlinkPlan struct {
	Target string // symlink target (the private location)
	Link   string // path where the symlink should be created
}

func (m *Manager) requiresPrivateHosting(kind execctx.DirectoryKind, preserveMode bool) bool {
	if !m.Dynamic {
		return false
	}
	if kind == execctx.DirConfiguration {
		return false
	}
	if kind == execctx.DirRuntime && !preserveMode {
		return false
	}
	return true
}

func (m *Manager) applyItem(kind execctx.DirectoryKind, prefix string, spec *execctx.DirectorySpec, item execctx.DirectoryItem, needMountNS bool) ([]SymlinkPlan, error) {
	full := filepath.Join(prefix, item.Path)

	// Step 1: create prefix[T]/P with mode from dir[T].mode, ancestors 0755.
	if err := mkdirAllWithAncestorMode(full, os.FileMode(spec.Mode)); err != nil {
		return nil, fmt.Errorf("create %s: %w", full, err)
	}

	var deferred []SymlinkPlan

	if m.requiresPrivateHosting(kind, spec.PreserveMode) {
		privateRoot := filepath.Join(prefix, "private")
		if err := ensurePrivateRoot(privateRoot); err != nil {
			return nil, err
		}
		privatePath := filepath.Join(privateRoot, item.Path)

		if err := migrateIntoPrivate(full, privatePath); err != nil {
			return nil, err
		}

		if !item.OnlyCreate {
			plan := SymlinkPlan{Target: privatePath, Link: full}
			if needMountNS {
				deferred = append(deferred, plan)
			} else {
				if err := createSymlink(plan); err != nil {
					return nil, err
				}
			}
		}

		if err := applyModeOwner(privatePath, os.FileMode(spec.Mode), m.UID, m.GID, m.Dynamic); err != nil {
			return nil, err
		}
	} else {
		// Step 3: migrate back from a prior dynamic-user private/ tree.
		if err := migrateBackFromPrivate(full, prefix, item.Path); err != nil {
			return nil, err
		}
		if err := applyModeOwner(full, os.FileMode(spec.Mode), m.UID, m.GID, m.Dynamic); err != nil {
			return nil, err
		}
	}

	for _, link := range item.Symlinks {
		linkPath := filepath.Join(prefix, link)
		if _, err := os.Lstat(linkPath); err == nil {
			continue // already present; idempotent
		}
		if err := os.Symlink(full, linkPath); err != nil && !os.IsExist(err) {
			return nil, fmt.Errorf("symlink %s -> %s: %w", linkPath, full, err)
		}
	}

	return deferred, nil
}

func mkdirAllWithAncestorMode(path string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.Mkdir(path, mode); err != nil {
		if os.IsExist(err) {
			return os.Chmod(path, mode)
		}
		return err
	}
	return nil
}

func ensurePrivateRoot(path string) error {
	if err := os.MkdirAll(path, privateDirMode); err != nil {
		return fmt.Errorf("create private root %s: %w", path, err)
	}
	if err := os.Chmod(path, privateDirMode); err != nil {
		return err
	}
	return os.Chown(path, 0, 0)
}

func migrateIntoPrivate(full, privatePath string) error {
	fullInfo, fullErr := os.Lstat(full)
	_, privateErr := os.Lstat(privatePath)

	if privateErr == nil {
		// Already migrated.
		return nil
	}
	if fullErr == nil && fullInfo.Mode()&os.ModeSymlink == 0 {
		// Pre-existing non-private directory: migrate it in.
		if err := os.Rename(full, privatePath); err != nil {
			return fmt.Errorf("migrate %s into private: %w", full, err)
		}
		return nil
	}
	return os.MkdirAll(privatePath, 0755)
}

func migrateBackFromPrivate(full, prefix, relPath string) error {
	info, err := os.Lstat(full)
	if err != nil {
		return nil // nothing to migrate
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return nil // not a symlink into private/, nothing to do
	}
	target, err := os.Readlink(full)
	if err != nil {
		return fmt.Errorf("readlink %s: %w", full, err)
	}
	privateRoot := filepath.Join(prefix, "private")
	if filepath.Dir(target) != filepath.Dir(filepath.Join(privateRoot, relPath)) && filepath.Clean(target) != filepath.Clean(filepath.Join(privateRoot, relPath)) {
		return nil // symlink doesn't point into our private/ tree
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("remove symlink %s: %w", full, err)
	}
	if err := os.Rename(target, full); err != nil {
		return fmt.Errorf("migrate %s back from private: %w", full, err)
	}
	return nil
}

func createSymlink(plan SymlinkPlan) error {
	_ = os.Remove(plan.Link)
	if err := os.Symlink(plan.Target, plan.Link); err != nil {
		return fmt.Errorf("symlink %s -> %s: %w", plan.Link, plan.Target, err)
	}
	return nil
}

// applyModeOwner does the idempotent chmod+chown and recursive chown of
// step 4; when dynamic is true it strips setuid/setgid bits during
// recursion.
func applyModeOwner(path string, mode os.FileMode, uid, gid int, dynamic bool) error {
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if uid < 0 || gid < 0 {
		return nil
	}
	return filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if chownErr := os.Lchown(p, uid, gid); chownErr != nil {
			return fmt.Errorf("chown %s: %w", p, chownErr)
		}
		if dynamic && info.Mode()&(os.ModeSetuid|os.ModeSetgid) != 0 {
			stripped := info.Mode() &^ (os.ModeSetuid | os.ModeSetgid)
			if chmodErr := os.Chmod(p, stripped.Perm()); chmodErr != nil {
				return fmt.Errorf("strip setuid/setgid %s: %w", p, chmodErr)
			}
		}
		return nil
	})
}
