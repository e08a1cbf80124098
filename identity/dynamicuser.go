package identity

import cerrors "execd/execerrors"

// DynamicUserAllocator is the abstract collaborator that picks a free
// uid/gid pair for dynamic-user services, with ephemeral recycling. The
// core supplies "suggested paths" (derived from exec-directory
// configuration) so the allocator can reuse a pre-existing owner id when
// one of those paths is already owned by a plausible dynamic-user uid.
type DynamicUserAllocator interface {
	// Allocate returns a (uid, gid) pair for the named service, consulting
	// suggestedPaths for a reusable owner id.
	Allocate(name string, suggestedPaths []string) (uid, gid int, err error)
	// Release returns a previously allocated pair to the free pool.
	Release(name string) error
}

// dynamicUserRangeMin/Max bound the allocation range, matching systemd's
// conventional dynamic-user uid range.
const (
	dynamicUserRangeMin = 61184
	dynamicUserRangeMax = 65519
)

// MemoryAllocator is an in-memory reference implementation of
// DynamicUserAllocator, suitable for tests and for single-manager
// deployments that don't need cross-process uid coordination.
type MemoryAllocator struct {
	byName map[string]int // name -> uid (== gid)
	used   map[int]bool
	next   int
}

// NewMemoryAllocator returns an empty in-memory allocator.
func NewMemoryAllocator() *MemoryAllocator {
	return &MemoryAllocator{
		byName: make(map[string]int),
		used:   make(map[int]bool),
		next:   dynamicUserRangeMin,
	}
}

// Allocate implements DynamicUserAllocator. suggestedPaths are consulted by
// statting each path's owner uid and reusing it if it falls within the
// dynamic-user range and is not already claimed by another name.
func (a *MemoryAllocator) Allocate(name string, suggestedPaths []string) (int, int, error) {
	if uid, ok := a.byName[name]; ok {
		return uid, uid, nil
	}

	if uid, ok := reuseOwnerFromPaths(suggestedPaths, a.used); ok {
		a.byName[name] = uid
		a.used[uid] = true
		return uid, uid, nil
	}

	for a.used[a.next] {
		a.next++
		if a.next > dynamicUserRangeMax {
			return 0, 0, cerrors.New(cerrors.ErrIdentity, "allocate dynamic user",
				"dynamic-user uid range exhausted")
		}
	}
	uid := a.next
	a.used[uid] = true
	a.byName[name] = uid
	a.next++
	return uid, uid, nil
}

// Release implements DynamicUserAllocator.
func (a *MemoryAllocator) Release(name string) error {
	uid, ok := a.byName[name]
	if !ok {
		return nil
	}
	delete(a.byName, name)
	delete(a.used, uid)
	return nil
}

// reuseOwnerFromPaths is split out so tests can exercise it without a real
// filesystem; production callers go through Allocate.
func reuseOwnerFromPaths(paths []string, used map[int]bool) (int, bool) {
	for _, p := range paths {
		uid, ok := statOwnerUID(p)
		if !ok {
			continue
		}
		if uid < dynamicUserRangeMin || uid > dynamicUserRangeMax {
			continue
		}
		if used[uid] {
			continue
		}
		return uid, true
	}
	return 0, false
}
