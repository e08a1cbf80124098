package identity

import (
	"os"
	"syscall"
)

// statOwnerUID returns the owning uid of path, or false if it can't be
// stat'd.
func statOwnerUID(path string) (int, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return int(stat.Uid), true
}

// SuggestedPaths derives the "suggested paths" list the allocator should
// consult: the non-private path for each directory kind/item in the
// context's exec-directory configuration, prefixed appropriately. Callers
// in package spawn build the actual prefixed paths; this helper just joins
// a prefix and a relative path, skipping empties.
func SuggestedPaths(prefixes [5]string, relPaths [][]string) []string {
	var out []string
	for kind, rels := range relPaths {
		prefix := prefixes[kind]
		if prefix == "" {
			continue
		}
		for _, rel := range rels {
			if rel == "" {
				continue
			}
			out = append(out, prefix+"/"+rel)
		}
	}
	return out
}
