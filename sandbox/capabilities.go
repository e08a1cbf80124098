package sandbox

import (
	"fmt"
	"strings"

	"github.com/moby/sys/capability"

	"execd/execctx"
)

// capByName resolves a capability name ("CAP_NET_ADMIN" or "net_admin") to
// its numeric value.
func capByName(name string) (capability.Cap, bool) {
	want := strings.ToUpper(strings.TrimPrefix(strings.ToUpper(name), "CAP_"))
	for _, c := range capability.List() {
		if strings.ToUpper(c.String()) == want {
			return c, true
		}
	}
	return 0, false
}

// DropBoundingSet implements step 22 (capability bounding-set drop): the
// "~all" sentinel keeps every capability; otherwise only the named
// capabilities survive in the bounding set.
func DropBoundingSet(names []string) error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("load capabilities: %w", err)
	}
	if err := caps.Load(); err != nil {
		return fmt.Errorf("load capabilities: %w", err)
	}

	if len(names) == 1 && names[0] == "~all" {
		return nil
	}

	keep := make(map[capability.Cap]bool, len(names))
	for _, n := range names {
		if c, ok := capByName(n); ok {
			keep[c] = true
		}
	}

	for _, c := range capability.List() {
		if !keep[c] {
			caps.Unset(capability.BOUNDING, c)
		}
	}

	if err := caps.Apply(capability.BOUNDING); err != nil {
		return fmt.Errorf("apply bounding set: %w", err)
	}
	return nil
}

// ApplyAmbientSet implements steps 23/26 (ambient capability set, applied
// once before setuid and once after, since the kernel clears ambient caps
// across an effective-uid change for a non-root target). Ambient caps must
// already be both permitted and inheritable.
func ApplyAmbientSet(names []string) error {
	if len(names) == 0 {
		return nil
	}

	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("load capabilities: %w", err)
	}
	if err := caps.Load(); err != nil {
		return fmt.Errorf("load capabilities: %w", err)
	}

	for _, n := range names {
		c, ok := capByName(n)
		if !ok {
			continue
		}
		if !caps.Get(capability.PERMITTED, c) || !caps.Get(capability.INHERITABLE, c) {
			continue
		}
		caps.Set(capability.AMBIENT, c)
	}

	if err := caps.Apply(capability.AMBIENT); err != nil {
		return fmt.Errorf("apply ambient set: %w", err)
	}
	return nil
}

// NeedsCapabilityWork reports whether the privileges block configures
// anything beyond the all-capabilities default.
func NeedsCapabilityWork(p *execctx.Privileges) bool {
	if len(p.CapabilityAmbientSet) > 0 {
		return true
	}
	if len(p.CapabilityBoundingSet) == 1 && p.CapabilityBoundingSet[0] == "~all" {
		return false
	}
	return len(p.CapabilityBoundingSet) > 0
}
