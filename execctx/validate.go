package execctx

import (
	"path/filepath"
	"strconv"

	cerrors "execd/execerrors"
)

// Validate checks the three directory-list invariants and the
// root-directory/root-image exclusivity invariant, returning a descriptive
// *cerrors.ExecError on the first violation found.
//
// Invariants (data model §3):
//
//	(a) no two items in a directory list share a canonical path
//	(b) a directory listed after one of its ancestors has only_create set
//	    and no symlinks attached
//	(c) at most one of root-directory and root-image is set
//	(d) set-credential ids and load-credential ids are globally valid short
//	    identifiers
func (c *Context) Validate() error {
	if c.Filesystem.RootDirectory != "" && c.Filesystem.RootImage != nil {
		return cerrors.New(cerrors.ErrInvalidConfig, "validate context",
			"root_directory and root_image are mutually exclusive")
	}

	for _, kind := range AllDirectoryKinds {
		if err := validateDirectoryItems(kind, c.Directories[kind].Items); err != nil {
			return err
		}
	}

	seen := make(map[string]bool)
	for _, cred := range c.SetCredentials {
		if !validCredentialID(cred.ID) {
			return cerrors.New(cerrors.ErrInvalidConfig, "validate context",
				"invalid set-credential id: "+cred.ID)
		}
		if seen[cred.ID] {
			return cerrors.New(cerrors.ErrInvalidConfig, "validate context",
				"duplicate credential id: "+cred.ID)
		}
		seen[cred.ID] = true
	}
	for _, cred := range c.LoadCredentials {
		if !validCredentialID(cred.ID) {
			return cerrors.New(cerrors.ErrInvalidConfig, "validate context",
				"invalid load-credential id: "+cred.ID)
		}
	}

	return nil
}

func validateDirectoryItems(kind DirectoryKind, items []DirectoryItem) error {
	canon := make(map[string]int) // canonical path -> index
	for i, item := range items {
		p := filepath.Clean(item.Path)
		if j, dup := canon[p]; dup {
			return cerrors.New(cerrors.ErrInvalidConfig, "validate directories",
				kind.String()+": duplicate path entries at index "+strconv.Itoa(j)+" and "+strconv.Itoa(i))
		}
		canon[p] = i
	}

	for i, item := range items {
		p := filepath.Clean(item.Path)
		for j, other := range items {
			if i == j {
				continue
			}
			op := filepath.Clean(other.Path)
			if isAncestor(op, p) {
				if !item.OnlyCreate || len(item.Symlinks) > 0 {
					return cerrors.New(cerrors.ErrInvalidConfig, "validate directories",
						kind.String()+": "+p+" descends from "+op+" but only_create is not set with no symlinks")
				}
			}
		}
	}
	return nil
}

// isAncestor reports whether ancestor is a proper ancestor directory of path.
func isAncestor(ancestor, path string) bool {
	if ancestor == path {
		return false
	}
	rel, err := filepath.Rel(ancestor, path)
	if err != nil {
		return false
	}
	return rel != "." && rel[0] != '.' && !filepath.IsAbs(rel)
}

// validCredentialID reports whether id is a globally valid short
// identifier: non-empty, no path separators, no leading dot, bounded length.
func validCredentialID(id string) bool {
	if id == "" || len(id) > 255 {
		return false
	}
	if id == "." || id == ".." {
		return false
	}
	for _, r := range id {
		if r == '/' || r == 0 {
			return false
		}
	}
	return true
}
