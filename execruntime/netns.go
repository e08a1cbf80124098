package execruntime

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// TakeNamespaceFD implements the "take, then put back" peek-replace
// protocol of §4.6: it receives the fd currently stored in the pair
// (MSG_PEEK does not consume the datagram), then re-sends the same fd back
// immediately so the next sibling observes the pair unchanged. Exactly one
// goroutine may hold the returned fd's exclusive use between Take and the
// caller's own bookkeeping; the pair itself is never left empty.
func (sp *SocketPair) TakeNamespaceFD() (int, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	fd, err := peekFD(sp.ends[0])
	if err != nil {
		return -1, fmt.Errorf("peek namespace fd: %w", err)
	}
	return fd, nil
}

// PutNamespaceFD stores fd into the pair for future siblings, replacing
// whatever was there (used once, at registration time, to seed the pair;
// after that, TakeNamespaceFD's peek semantics keep it populated without a
// separate put).
func (sp *SocketPair) PutNamespaceFD(fd int) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sendFD(sp.ends[1], fd)
}

// peekFD receives one fd over a SCM_RIGHTS datagram using MSG_PEEK so the
// datagram remains queued for the next reader.
func peekFD(sock int) (int, error) {
	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := unix.Recvmsg(sock, buf, oob, unix.MSG_PEEK)
	if err != nil {
		return -1, fmt.Errorf("recvmsg: %w", err)
	}
	if n == 0 || oobn == 0 {
		return -1, fmt.Errorf("empty namespace socket, no sibling has registered an fd")
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return -1, fmt.Errorf("parse control message: %w", err)
	}
	for _, msg := range msgs {
		fds, err := unix.ParseUnixRights(&msg)
		if err != nil {
			continue
		}
		if len(fds) > 0 {
			return fds[0], nil
		}
	}
	return -1, fmt.Errorf("no rights in control message")
}

// sendFD sends fd as an SCM_RIGHTS datagram.
func sendFD(sock, fd int) error {
	rights := unix.UnixRights(fd)
	return unix.Sendmsg(sock, []byte{0}, rights, nil, 0)
}
