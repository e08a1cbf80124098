package utils

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// EventBarrier is a two-sided eventfd rendezvous: each side flips a flag and
// waits for the other before proceeding. It grounds both the user-namespace
// bootstrap handshake (parent signals "ready to map", child signals "mapped")
// and the PAM keeper handshake (main path signals "about to setresuid",
// keeper signals "reparented").
type EventBarrier struct {
	file *os.File
}

// NewEventBarrier creates a new eventfd-backed barrier with counter 0.
func NewEventBarrier() (*EventBarrier, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &EventBarrier{file: os.NewFile(uintptr(fd), "event-barrier")}, nil
}

// File returns the underlying eventfd, e.g. to pass across fork.
func (b *EventBarrier) File() *os.File {
	return b.file
}

// WrapEventBarrier reconstructs a barrier from an already-open eventfd
// descriptor, e.g. one inherited across a fork+exec via ExtraFiles rather
// than a raw fork that shares the original *EventBarrier value.
func WrapEventBarrier(fd int) *EventBarrier {
	return &EventBarrier{file: os.NewFile(uintptr(fd), "event-barrier")}
}

// Signal increments the eventfd counter by one, waking any waiter.
func (b *EventBarrier) Signal() error {
	buf := make([]byte, 8)
	buf[0] = 1
	_, err := b.file.Write(buf)
	return err
}

// Wait blocks until the eventfd counter is nonzero, then resets it to zero.
func (b *EventBarrier) Wait() error {
	buf := make([]byte, 8)
	_, err := b.file.Read(buf)
	return err
}

// Close closes the eventfd.
func (b *EventBarrier) Close() error {
	return b.file.Close()
}
