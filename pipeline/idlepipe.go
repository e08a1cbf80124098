package pipeline

import (
	"time"

	"golang.org/x/sys/unix"

	"execd/execctx"
)

const (
	idlePipeHangupTimeout = 5 * time.Second
	idlePipeNotifyTimeout = 1 * time.Second
)

// RunIdlePipeDance implements §4.9/§5's "boot boredom" protocol: the child
// closes the write ends it doesn't use, waits up to 5s for POLLHUP on the
// read end; on timeout it writes one byte to the notify end and waits up to
// 1s more, then closes everything regardless of outcome.
func RunIdlePipeDance(ip *execctx.IdlePipe) error {
	if ip == nil {
		return nil
	}
	defer closeIdlePipeFDs(ip)

	if ip.WriteFD >= 0 {
		unix.Close(ip.WriteFD)
		ip.WriteFD = -1
	}

	hungUp, err := waitForHangup(ip.ReadFD, idlePipeHangupTimeout)
	if err != nil {
		return err
	}
	if hungUp {
		return nil
	}

	if ip.NotifyWriteFD >= 0 {
		unix.Write(ip.NotifyWriteFD, []byte{0})
	}

	_, err = waitForHangup(ip.ReadFD, idlePipeNotifyTimeout)
	return err
}

func waitForHangup(fd int, timeout time.Duration) (bool, error) {
	if fd < 0 {
		return true, nil
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLHUP}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	return fds[0].Revents&unix.POLLHUP != 0, nil
}

func closeIdlePipeFDs(ip *execctx.IdlePipe) {
	for _, fd := range []int{ip.ReadFD, ip.WriteFD, ip.NotifyReadFD, ip.NotifyWriteFD} {
		if fd >= 0 {
			unix.Close(fd)
		}
	}
}
