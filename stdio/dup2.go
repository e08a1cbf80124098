package stdio

import "golang.org/x/sys/unix"

// dup2 duplicates oldfd onto newfd, closing newfd first if already open.
func dup2(oldfd, newfd int) error {
	return unix.Dup2(oldfd, newfd)
}
