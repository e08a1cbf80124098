// Package identity implements component C3 of the execution-context
// assembly pipeline: fixed user/group lookup, supplementary-group
// assembly, and dynamic-user allocation.
package identity

import (
	"fmt"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"

	cerrors "execd/execerrors"
)

// Resolved is the outcome of resolving a configured user/group pair.
type Resolved struct {
	UID   int
	GID   int
	Home  string
	Shell string
}

// suspiciousShells are cleaned to empty so they don't pollute SHELL.
var suspiciousShells = map[string]bool{
	"/bin/nologin":     true,
	"/usr/sbin/nologin": true,
	"/sbin/nologin":    true,
}

// ResolveUser resolves a configured user name or numeric id to
// (uid, gid, home, shell). Suspicious shells (nologin variants) and a home
// directory of "/" are cleaned to empty so the environment isn't polluted
// with them.
func ResolveUser(name string) (*Resolved, error) {
	if name == "" {
		return &Resolved{UID: -1, GID: -1}, nil
	}

	var u *user.User
	var err error
	if uid, convErr := strconv.Atoi(name); convErr == nil {
		u, err = user.LookupId(strconv.Itoa(uid))
	} else {
		u, err = user.Lookup(name)
	}
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrIdentity, "resolve user "+name)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrIdentity, "parse uid")
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrIdentity, "parse gid")
	}

	home := u.HomeDir
	if home == "/" {
		home = ""
	}
	shell := loginShell(u.Username)
	if suspiciousShells[shell] {
		shell = ""
	}

	return &Resolved{UID: uid, GID: gid, Home: home, Shell: shell}, nil
}

// ResolveGroup resolves a configured group name or numeric id to a gid,
// overriding the user's primary gid.
func ResolveGroup(name string) (int, error) {
	if name == "" {
		return -1, nil
	}
	if gid, err := strconv.Atoi(name); err == nil {
		return gid, nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return -1, cerrors.Wrap(err, cerrors.ErrIdentity, "resolve group "+name)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return -1, cerrors.Wrap(err, cerrors.ErrIdentity, "parse gid")
	}
	return gid, nil
}

// SupplementaryGroups assembles the final supplementary group list: if uid
// is set and gid is nonzero, it seeds the list with the user's own groups
// (initgroups-equivalent), then appends explicitly requested group names,
// and rejects overflow of NGROUPS_MAX.
func SupplementaryGroups(u *Resolved, username string, extra []string) ([]int, error) {
	var groups []int
	seen := make(map[int]bool)

	if u != nil && u.GID != 0 && username != "" {
		if usr, err := user.Lookup(username); err == nil {
			gids, err := usr.GroupIds()
			if err == nil {
				for _, g := range gids {
					gid, convErr := strconv.Atoi(g)
					if convErr != nil {
						continue
					}
					if !seen[gid] {
						groups = append(groups, gid)
						seen[gid] = true
					}
				}
			}
		}
	}

	for _, name := range extra {
		gid, err := ResolveGroup(name)
		if err != nil {
			return nil, err
		}
		if !seen[gid] {
			groups = append(groups, gid)
			seen[gid] = true
		}
	}

	const ngroupsMax = 65536 // Linux NGROUPS_MAX
	if len(groups) > ngroupsMax {
		return nil, cerrors.New(cerrors.ErrIdentity, "supplementary groups",
			fmt.Sprintf("group list length %d exceeds NGROUPS_MAX %d", len(groups), ngroupsMax))
	}

	return groups, nil
}

// Enforce applies setgroups then setresgid then setresuid, in that order,
// as required by §4.3 (groups must be set while the process still has
// CAP_SETGID, before the uid change drops it).
func Enforce(groups []int, gid, uid int) error {
	if groups != nil {
		if err := unix.Setgroups(groups); err != nil {
			return cerrors.Wrap(err, cerrors.ErrIdentity, "setgroups")
		}
	}
	if gid >= 0 {
		if err := unix.Setresgid(gid, gid, gid); err != nil {
			return cerrors.Wrap(err, cerrors.ErrIdentity, "setresgid")
		}
	}
	if uid >= 0 {
		if err := unix.Setresuid(uid, uid, uid); err != nil {
			return cerrors.Wrap(err, cerrors.ErrIdentity, "setresuid")
		}
	}
	return nil
}

// loginShell looks up the shell for a username via the system database.
// os/user does not expose the shell field portably, so this reads
// /etc/passwd directly as a best-effort fallback, returning "" if the
// lookup can't be performed.
func loginShell(username string) string {
	shell, err := readShellFromPasswd(username)
	if err != nil {
		return ""
	}
	return shell
}
