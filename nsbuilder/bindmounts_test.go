package nsbuilder

import (
	"testing"

	"execd/execctx"
)

func TestCompileBindMounts_PassesThroughConfigured(t *testing.T) {
	ctx := execctx.NewDefaultContext()
	ctx.Filesystem.BindMounts = []execctx.BindMount{
		{Source: "/src", Destination: "/dst", ReadOnly: true},
	}

	plans := CompileBindMounts(ctx, [5]string{})
	if len(plans) != 1 || plans[0].Source != "/src" || !plans[0].ReadOnly {
		t.Fatalf("unexpected plans: %+v", plans)
	}
}

func TestCompileBindMounts_DynamicUserSyntheticTmpfs(t *testing.T) {
	ctx := execctx.NewDefaultContext()
	ctx.DynamicUser = true
	ctx.Dir(execctx.DirState).Items = []execctx.DirectoryItem{{Path: "foo"}}

	prefixes := [5]string{}
	prefixes[execctx.DirState] = "/var/lib/my-unit"

	plans := CompileBindMounts(ctx, prefixes)
	if len(plans) != 1 {
		t.Fatalf("expected one synthetic tmpfs plan, got %d: %+v", len(plans), plans)
	}
	if plans[0].Destination != "/var/lib/my-unit/private" {
		t.Errorf("unexpected destination: %s", plans[0].Destination)
	}
}

func TestCompileSymlinks_DynamicUserCanonicalLinks(t *testing.T) {
	ctx := execctx.NewDefaultContext()
	ctx.DynamicUser = true
	ctx.Dir(execctx.DirState).Items = []execctx.DirectoryItem{{Path: "foo"}}

	prefixes := [5]string{}
	prefixes[execctx.DirState] = "/var/lib/my-unit"

	plans := CompileSymlinks(ctx, prefixes)
	if len(plans) != 1 {
		t.Fatalf("expected one symlink plan, got %d", len(plans))
	}
	if plans[0].Source != "/var/lib/my-unit/private/foo" || plans[0].Destination != "/var/lib/my-unit/foo" {
		t.Errorf("unexpected plan: %+v", plans[0])
	}
}

func TestCompileSymlinks_SkipsOnlyCreateItems(t *testing.T) {
	ctx := execctx.NewDefaultContext()
	ctx.DynamicUser = true
	ctx.Dir(execctx.DirState).Items = []execctx.DirectoryItem{{Path: "foo", OnlyCreate: true}}

	prefixes := [5]string{}
	prefixes[execctx.DirState] = "/var/lib/my-unit"

	plans := CompileSymlinks(ctx, prefixes)
	if len(plans) != 0 {
		t.Errorf("expected no symlink plans for only-create item, got %+v", plans)
	}
}

func TestCompileSymlinks_NoneWithRootDirectory(t *testing.T) {
	ctx := execctx.NewDefaultContext()
	ctx.DynamicUser = true
	ctx.Filesystem.RootDirectory = "/srv/root"
	ctx.Dir(execctx.DirState).Items = []execctx.DirectoryItem{{Path: "foo"}}

	prefixes := [5]string{}
	prefixes[execctx.DirState] = "/var/lib/my-unit"

	if plans := CompileSymlinks(ctx, prefixes); len(plans) != 0 {
		t.Errorf("expected no symlinks when a separate rootfs is present, got %+v", plans)
	}
}
