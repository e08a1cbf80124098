package nsbuilder

import (
	"testing"

	"execd/execctx"
)

func TestNeedsMountNamespace_DefaultFalse(t *testing.T) {
	ctx := execctx.NewDefaultContext()
	if NeedsMountNamespace(ctx) {
		t.Error("expected a freshly-defaulted context to not need a mount namespace")
	}
}

func TestNeedsMountNamespace_Cases(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*execctx.Context)
	}{
		{"root-directory", func(c *execctx.Context) { c.Filesystem.RootDirectory = "/srv/root" }},
		{"root-image", func(c *execctx.Context) { c.Filesystem.RootImage = &execctx.MountImage{Source: "/img"} }},
		{"read-only-paths", func(c *execctx.Context) { c.Filesystem.ReadOnlyPaths = []string{"/etc"} }},
		{"bind-mounts", func(c *execctx.Context) { c.Filesystem.BindMounts = []execctx.BindMount{{Source: "/a", Destination: "/b"}} }},
		{"tmpfs-mounts", func(c *execctx.Context) { c.Filesystem.TmpfsMounts = []execctx.TmpfsMount{{Destination: "/tmp/x"}} }},
		{"private-tmp", func(c *execctx.Context) { c.Filesystem.PrivateTmp = true }},
		{"private-devices", func(c *execctx.Context) { c.Filesystem.PrivateDevices = true }},
		{"protect-home", func(c *execctx.Context) { c.Filesystem.ProtectHome = execctx.ProtectReadOnly }},
		{"protect-proc", func(c *execctx.Context) { c.Filesystem.ProtectProc = "invisible" }},
		{"log-namespace", func(c *execctx.Context) { c.IO.LogNamespace = "my-ns" }},
		{"dynamic-user-with-dir", func(c *execctx.Context) {
			c.DynamicUser = true
			c.Dir(execctx.DirState).Items = []execctx.DirectoryItem{{Path: "foo"}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := execctx.NewDefaultContext()
			tc.setup(ctx)
			if !NeedsMountNamespace(ctx) {
				t.Errorf("expected NeedsMountNamespace to be true for %s", tc.name)
			}
		})
	}
}

func TestCloneFlags_MountNamespace(t *testing.T) {
	ctx := execctx.NewDefaultContext()
	ctx.Filesystem.PrivateTmp = true

	flags := CloneFlags(ctx, nil)
	if flags&CLONE_NEWNS == 0 {
		t.Error("expected CLONE_NEWNS to be set")
	}
}

func TestCloneFlags_PrivateNetworkWithoutRuntimeEntry(t *testing.T) {
	ctx := execctx.NewDefaultContext()
	ctx.Filesystem.PrivateNetwork = true

	flags := CloneFlags(ctx, nil)
	if flags&CLONE_NEWNET == 0 {
		t.Error("expected CLONE_NEWNET to be set when no ExecRuntime netns socket is available")
	}
}

func TestCloneFlags_ProtectHostnameSetsUTS(t *testing.T) {
	ctx := execctx.NewDefaultContext()
	ctx.Syscall.ProtectHostname = true

	flags := CloneFlags(ctx, nil)
	if flags&CLONE_NEWUTS == 0 {
		t.Error("expected CLONE_NEWUTS to be set when ProtectHostname is configured")
	}
}

func TestCloneFlags_LogNamespaceDoesNotSetUTS(t *testing.T) {
	ctx := execctx.NewDefaultContext()
	ctx.IO.LogNamespace = "my-ns"

	flags := CloneFlags(ctx, nil)
	if flags&CLONE_NEWUTS != 0 {
		t.Error("LogNamespace alone should not require a UTS namespace")
	}
}
