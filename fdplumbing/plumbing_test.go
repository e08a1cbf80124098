package fdplumbing

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// openPipes returns n open read-ends of fresh pipes, for use as fds to
// shift; the write ends are closed immediately since only fd identity
// matters for these tests.
func openPipes(t *testing.T, n int) []int {
	t.Helper()
	fds := make([]int, n)
	for i := 0; i < n; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatalf("pipe: %v", err)
		}
		w.Close()
		fd, err := unix.Dup(int(r.Fd()))
		if err != nil {
			t.Fatalf("dup: %v", err)
		}
		r.Close()
		fds[i] = fd
	}
	return fds
}

func TestShift_AlreadyInPlace(t *testing.T) {
	// Construct 3 fds already sitting at slots 3,4,5 is impractical to force
	// deterministically without raw dup2; instead verify the postcondition
	// on freshly opened (out-of-order) fds.
	fds := openPipes(t, 3)
	defer func() {
		for _, fd := range fds {
			unix.Close(fd)
		}
	}()

	shifted, err := Shift(fds)
	if err != nil {
		t.Fatalf("Shift failed: %v", err)
	}
	defer func() {
		for _, fd := range shifted {
			unix.Close(fd)
		}
	}()

	for i, fd := range shifted {
		want := i + baseFD
		if fd != want {
			t.Errorf("fds[%d] = %d, want %d", i, fd, want)
		}
	}
}

func TestShift_ClearsCloexec(t *testing.T) {
	fds := openPipes(t, 2)
	defer func() {
		for _, fd := range fds {
			unix.Close(fd)
		}
	}()

	shifted, err := Shift(fds)
	if err != nil {
		t.Fatalf("Shift failed: %v", err)
	}
	defer func() {
		for _, fd := range shifted {
			unix.Close(fd)
		}
	}()

	for _, fd := range shifted {
		flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
		if err != nil {
			t.Fatalf("fcntl F_GETFD: %v", err)
		}
		if flags&unix.FD_CLOEXEC != 0 {
			t.Errorf("fd %d still has FD_CLOEXEC set", fd)
		}
	}
}

func TestShift_Empty(t *testing.T) {
	shifted, err := Shift(nil)
	if err != nil {
		t.Fatalf("Shift(nil) failed: %v", err)
	}
	if len(shifted) != 0 {
		t.Errorf("expected empty result, got %v", shifted)
	}
}

func TestSetNonblockPrefix(t *testing.T) {
	fds := openPipes(t, 3)
	defer func() {
		for _, fd := range fds {
			unix.Close(fd)
		}
	}()

	if err := SetNonblockPrefix(fds, 2, true); err != nil {
		t.Fatalf("SetNonblockPrefix failed: %v", err)
	}

	for i, fd := range fds {
		flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
		if err != nil {
			t.Fatalf("fcntl F_GETFL: %v", err)
		}
		isNonblock := flags&unix.O_NONBLOCK != 0
		if i < 2 && !isNonblock {
			t.Errorf("fd %d (index %d) expected O_NONBLOCK set", fd, i)
		}
		if i >= 2 && isNonblock {
			t.Errorf("fd %d (index %d) expected O_NONBLOCK unset", fd, i)
		}
	}
}
