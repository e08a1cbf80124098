package execctx

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefaultContext(t *testing.T) {
	ctx := NewDefaultContext()

	if ctx.Resources.Umask != 0022 {
		t.Errorf("expected umask 0022, got %o", ctx.Resources.Umask)
	}
	if ctx.Resources.CPUSchedPolicy != SchedOther {
		t.Errorf("expected SCHED_OTHER, got %d", ctx.Resources.CPUSchedPolicy)
	}
	if ctx.IO.SyslogPriority != LogDaemon|LogInfo {
		t.Errorf("expected syslog priority LOG_DAEMON|LOG_INFO, got %d", ctx.IO.SyslogPriority)
	}
	if ctx.Resources.TimerSlackNSec != TimerSlackInfinity {
		t.Error("expected timer slack infinity sentinel")
	}
	if ctx.Privileges.Personality != "invalid" {
		t.Errorf("expected personality sentinel 'invalid', got %q", ctx.Privileges.Personality)
	}
	for _, kind := range AllDirectoryKinds {
		if ctx.Directories[kind].Mode != 0755 {
			t.Errorf("%s: expected mode 0755, got %o", kind, ctx.Directories[kind].Mode)
		}
	}
	if len(ctx.Privileges.CapabilityBoundingSet) != 1 || ctx.Privileges.CapabilityBoundingSet[0] != "~all" {
		t.Errorf("expected capability bounding set sentinel all, got %v", ctx.Privileges.CapabilityBoundingSet)
	}
	if ctx.Syscall.RestrictNamespaces != RestrictNamespacesInitial {
		t.Error("expected restrict-namespaces initial sentinel")
	}
	if ctx.IO.TTYRows != TTYSizeMax || ctx.IO.TTYCols != TTYSizeMax {
		t.Error("expected tty rows/cols max sentinel")
	}
}

func TestValidate_RootDirectoryAndImageExclusive(t *testing.T) {
	ctx := NewDefaultContext()
	ctx.Filesystem.RootDirectory = "/srv/myapp"
	ctx.Filesystem.RootImage = &MountImage{Source: "/var/lib/images/myapp.raw"}

	if err := ctx.Validate(); err == nil {
		t.Error("expected validation error for mutually exclusive root directory/image")
	}
}

func TestValidate_DuplicateDirectoryPath(t *testing.T) {
	ctx := NewDefaultContext()
	ctx.Directories[DirState].Items = []DirectoryItem{
		{Path: "foo"},
		{Path: "foo"},
	}

	if err := ctx.Validate(); err == nil {
		t.Error("expected validation error for duplicate directory path")
	}
}

func TestValidate_DescendantRequiresOnlyCreate(t *testing.T) {
	ctx := NewDefaultContext()
	ctx.Directories[DirState].Items = []DirectoryItem{
		{Path: "foo"},
		{Path: "foo/bar", OnlyCreate: true},
	}
	if err := ctx.Validate(); err != nil {
		t.Errorf("expected valid: descendant has only_create set: %v", err)
	}

	ctx.Directories[DirState].Items = []DirectoryItem{
		{Path: "foo"},
		{Path: "foo/bar", OnlyCreate: false},
	}
	if err := ctx.Validate(); err == nil {
		t.Error("expected validation error: descendant without only_create")
	}

	ctx.Directories[DirState].Items = []DirectoryItem{
		{Path: "foo"},
		{Path: "foo/bar", OnlyCreate: true, Symlinks: []string{"baz"}},
	}
	if err := ctx.Validate(); err == nil {
		t.Error("expected validation error: descendant with only_create but symlinks attached")
	}
}

func TestValidate_CredentialIDs(t *testing.T) {
	ctx := NewDefaultContext()
	ctx.SetCredentials = []CredentialSpec{{ID: "../escape"}}
	if err := ctx.Validate(); err == nil {
		t.Error("expected validation error for credential id containing path traversal")
	}

	ctx = NewDefaultContext()
	ctx.SetCredentials = []CredentialSpec{{ID: "mykey"}, {ID: "mykey"}}
	if err := ctx.Validate(); err == nil {
		t.Error("expected validation error for duplicate credential id")
	}

	ctx = NewDefaultContext()
	ctx.SetCredentials = []CredentialSpec{{ID: "mykey", Data: []byte("hunter2")}}
	ctx.LoadCredentials = []CredentialSpec{{ID: "mycert", Path: "/etc/ssl/x.pem"}}
	if err := ctx.Validate(); err != nil {
		t.Errorf("expected valid credential ids: %v", err)
	}
}

func TestLoadSaveJSON(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "execd-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	ctx := NewDefaultContext()
	ctx.User = "nobody"
	ctx.Filesystem.PrivateTmp = true

	path := filepath.Join(tmpDir, "context.json")
	if err := ctx.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.User != "nobody" {
		t.Errorf("user mismatch: expected nobody, got %q", loaded.User)
	}
	if !loaded.Filesystem.PrivateTmp {
		t.Error("expected PrivateTmp true after round-trip")
	}
}

func TestLoadNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/path/context.json"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "execd-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "context.json")
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatalf("failed to write invalid json: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadSaveYAML(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "execd-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	ctx := NewDefaultContext()
	ctx.Group = "nobody"

	path := filepath.Join(tmpDir, "context.yaml")
	if err := ctx.SaveYAML(path); err != nil {
		t.Fatalf("SaveYAML failed: %v", err)
	}

	loaded, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}
	if loaded.Group != "nobody" {
		t.Errorf("group mismatch: expected nobody, got %q", loaded.Group)
	}
}

func TestDump(t *testing.T) {
	ctx := NewDefaultContext()
	ctx.User = "nobody"

	var buf bytes.Buffer
	if err := ctx.Dump(&buf); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("User: nobody")) {
		t.Errorf("expected dump to contain User: nobody, got: %s", buf.String())
	}
}
