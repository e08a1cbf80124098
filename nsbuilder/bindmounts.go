package nsbuilder

import (
	"path/filepath"

	"execd/execctx"
)

// Plan is one compiled bind-mount entry, per §4.7's flat-list description.
type Plan struct {
	Source        string
	Destination   string
	ReadOnly      bool
	Recursive     bool
	IgnoreMissing bool
	NoSuid        bool
}

// SymlinkPlan is one (src -> dst) pair to be created after mounts settle
// but before read-only is applied.
type SymlinkPlan struct {
	Source      string
	Destination string
}

// CompileBindMounts produces the flat bind-mount list, adding a synthetic
// tmpfs mount for dynamic-user per-service directories that have no
// separate rootfs (§4.7).
func CompileBindMounts(ctx *execctx.Context, dirPrefixes [5]string) []Plan {
	var plans []Plan

	for _, bm := range ctx.Filesystem.BindMounts {
		plans = append(plans, Plan{
			Source:        bm.Source,
			Destination:   bm.Destination,
			ReadOnly:      bm.ReadOnly,
			Recursive:     bm.Recursive,
			IgnoreMissing: bm.IgnoreMissing,
			NoSuid:        bm.NoSuid,
		})
	}

	if ctx.DynamicUser && ctx.Filesystem.RootDirectory == "" && ctx.Filesystem.RootImage == nil {
		for _, kind := range execctx.AllDirectoryKinds {
			prefix := dirPrefixes[kind]
			if prefix == "" || len(ctx.Dir(kind).Items) == 0 {
				continue
			}
			plans = append(plans, Plan{
				Source:      "tmpfs",
				Destination: filepath.Join(prefix, "private"),
				NoSuid:      true,
			})
		}
	}

	return plans
}

// CompileSymlinks produces the parallel symlink list, adding the canonical
// prefix[T]/P -> prefix[T]/private/P links for dynamic-user services
// without a separate rootfs.
func CompileSymlinks(ctx *execctx.Context, dirPrefixes [5]string) []SymlinkPlan {
	var plans []SymlinkPlan

	if !ctx.DynamicUser || ctx.Filesystem.RootDirectory != "" || ctx.Filesystem.RootImage != nil {
		return plans
	}

	for _, kind := range execctx.AllDirectoryKinds {
		prefix := dirPrefixes[kind]
		if prefix == "" {
			continue
		}
		for _, item := range ctx.Dir(kind).Items {
			if item.OnlyCreate {
				continue
			}
			plans = append(plans, SymlinkPlan{
				Source:      filepath.Join(prefix, "private", item.Path),
				Destination: filepath.Join(prefix, item.Path),
			})
		}
	}

	return plans
}
