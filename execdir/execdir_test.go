package execdir

import (
	"os"
	"path/filepath"
	"testing"

	"execd/execctx"
)

func TestApply_NonDynamicUser_CreatesPlainDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	ctx := execctx.NewDefaultContext()
	ctx.Dir(execctx.DirState).Items = []execctx.DirectoryItem{{Path: "foo"}}

	m := &Manager{
		Prefixes: [5]string{},
		UID:      -1,
		GID:      -1,
	}
	m.Prefixes[execctx.DirState] = tmpDir

	deferred, err := m.Apply(ctx, false)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(deferred) != 0 {
		t.Errorf("expected no deferred symlinks for non-dynamic-user, got %v", deferred)
	}

	info, err := os.Stat(filepath.Join(tmpDir, "foo"))
	if err != nil {
		t.Fatalf("expected directory to exist: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected foo to be a directory")
	}
}

func TestApply_Idempotent(t *testing.T) {
	tmpDir := t.TempDir()

	ctx := execctx.NewDefaultContext()
	ctx.Dir(execctx.DirState).Items = []execctx.DirectoryItem{{Path: "foo"}}

	m := &Manager{UID: -1, GID: -1}
	m.Prefixes[execctx.DirState] = tmpDir

	if _, err := m.Apply(ctx, false); err != nil {
		t.Fatalf("first Apply failed: %v", err)
	}
	if _, err := m.Apply(ctx, false); err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(tmpDir, "foo"))
	if err != nil {
		t.Fatalf("expected directory to survive re-apply: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected foo to remain a directory")
	}
}

func TestApply_DynamicUser_PrivateHosting(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("dynamic-user private hosting chowns to an arbitrary uid, requires root")
	}

	tmpDir := t.TempDir()

	ctx := execctx.NewDefaultContext()
	ctx.DynamicUser = true
	ctx.Dir(execctx.DirState).Items = []execctx.DirectoryItem{{Path: "foo"}}

	m := &Manager{UID: 60000, GID: 60000, Dynamic: true}
	m.Prefixes[execctx.DirState] = tmpDir

	deferred, err := m.Apply(ctx, true)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(deferred) != 1 {
		t.Fatalf("expected one deferred symlink plan, got %d", len(deferred))
	}

	privateRoot := filepath.Join(tmpDir, "private")
	info, err := os.Stat(privateRoot)
	if err != nil {
		t.Fatalf("expected private root to exist: %v", err)
	}
	if info.Mode().Perm() != privateDirMode {
		t.Errorf("expected private root mode %o, got %o", privateDirMode, info.Mode().Perm())
	}

	privatePath := filepath.Join(privateRoot, "foo")
	if _, err := os.Stat(privatePath); err != nil {
		t.Fatalf("expected private/foo to exist: %v", err)
	}
}
