package pipeline

import (
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"execd/execctx"
)

func TestRunIdlePipeDance_NilIsNoop(t *testing.T) {
	if err := RunIdlePipeDance(nil); err != nil {
		t.Errorf("RunIdlePipeDance(nil) should be a no-op, got %v", err)
	}
}

func TestRunIdlePipeDance_ImmediateHangup(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe failed: %v", err)
	}
	w.Close() // immediate EOF/hangup on the read end

	ip := &execctx.IdlePipe{
		ReadFD:        int(r.Fd()),
		WriteFD:       -1,
		NotifyReadFD:  -1,
		NotifyWriteFD: -1,
	}

	done := make(chan error, 1)
	go func() { done <- RunIdlePipeDance(ip) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunIdlePipeDance failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("RunIdlePipeDance did not return promptly on immediate hangup")
	}
}

func TestWaitForHangup_NegativeFDTreatedAsHungUp(t *testing.T) {
	hungUp, err := waitForHangup(-1, time.Second)
	if err != nil {
		t.Fatalf("waitForHangup(-1) failed: %v", err)
	}
	if !hungUp {
		t.Error("waitForHangup(-1) should report hung up")
	}
}

func TestRunIdlePipeDance_NotifiesOnTimeout(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe failed: %v", err)
	}
	defer r.Close()

	// The manager keeps its own copy of the write end open so the read end
	// does not hang up the instant the child closes its copy (WriteFD).
	managerFD, err := unix.Dup(int(w.Fd()))
	if err != nil {
		t.Fatalf("Dup failed: %v", err)
	}
	w.Close()

	nr, nw, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe failed: %v", err)
	}
	defer nr.Close()

	childWriteFD, err := unix.Dup(int(r.Fd()))
	if err != nil {
		t.Fatalf("Dup failed: %v", err)
	}

	ip := &execctx.IdlePipe{
		ReadFD:        int(r.Fd()),
		WriteFD:       childWriteFD,
		NotifyReadFD:  -1,
		NotifyWriteFD: int(nw.Fd()),
	}

	// Once the notification byte arrives, close the manager's copy so the
	// second, shorter wait observes the hangup and returns.
	go func() {
		buf := make([]byte, 1)
		unix.Read(int(nr.Fd()), buf)
		unix.Close(managerFD)
	}()

	done := make(chan error, 1)
	go func() { done <- RunIdlePipeDance(ip) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunIdlePipeDance failed: %v", err)
		}
	case <-time.After(8 * time.Second):
		t.Fatal("RunIdlePipeDance did not complete within the documented timeouts")
	}
}
