// Package fdplumbing implements component C1 of the execution-context
// assembly pipeline: shifting a set of to-be-passed file descriptors into a
// contiguous block starting at descriptor 3, and toggling FD_CLOEXEC /
// O_NONBLOCK on them as they cross execve.
package fdplumbing

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// baseFD is the lowest descriptor number passed fds are shifted into.
const baseFD = 3

// Shift rearranges fds so that after it returns, fds[i] == i+baseFD for all
// i, with FD_CLOEXEC cleared on every resulting descriptor. It follows the
// repeated-scan algorithm: for each entry whose value is not its target
// slot, dup to the lowest free descriptor >= its target, close the
// original, and record the new value; if the dup landed above the target
// (the slot was occupied), restart the scan from the earliest such index.
// Each pass places at least one more fd at its final slot, so the loop
// terminates.
func Shift(fds []int) ([]int, error) {
	result := make([]int, len(fds))
	copy(result, fds)

	for {
		restartFrom := -1
		for i, fd := range result {
			target := i + baseFD
			if fd == target {
				continue
			}
			newFD, err := dupTo(fd, target)
			if err != nil {
				return nil, fmt.Errorf("dup fd %d to %d: %w", fd, target, err)
			}
			if err := unix.Close(fd); err != nil {
				return nil, fmt.Errorf("close original fd %d: %w", fd, err)
			}
			result[i] = newFD
			if newFD != target && restartFrom == -1 {
				restartFrom = i
			}
		}
		if restartFrom == -1 {
			break
		}
	}

	for _, fd := range result {
		if err := SetCloexec(fd, false); err != nil {
			return nil, fmt.Errorf("clear cloexec on fd %d: %w", fd, err)
		}
	}

	return result, nil
}

// dupTo duplicates fd to the lowest free descriptor >= min. If min is
// already free it lands exactly there; otherwise it lands at whatever the
// kernel picks next, which the caller detects by comparing against min.
func dupTo(fd, min int) (int, error) {
	newFD, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, min)
	if err != nil {
		return 0, err
	}
	return newFD, nil
}

// SetCloexec toggles FD_CLOEXEC on fd.
func SetCloexec(fd int, on bool) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return err
	}
	if on {
		flags |= unix.FD_CLOEXEC
	} else {
		flags &^= unix.FD_CLOEXEC
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags)
	return err
}

// SetNonblock toggles O_NONBLOCK on fd.
func SetNonblock(fd int, on bool) error {
	return unix.SetNonblock(fd, on)
}

// SetNonblockPrefix toggles O_NONBLOCK on the socket-fd prefix of a shifted
// fd array: the first n entries (socket-activation fds come first by
// convention in ExecParameters.SocketFDs).
func SetNonblockPrefix(fds []int, n int, on bool) error {
	for i := 0; i < n && i < len(fds); i++ {
		if err := SetNonblock(fds[i], on); err != nil {
			return fmt.Errorf("set nonblock on fd %d: %w", fds[i], err)
		}
	}
	return nil
}
