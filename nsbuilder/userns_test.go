package nsbuilder

import (
	"os"
	"testing"
)

func TestUserNSBootstrap_ReadySignalRoundTrip(t *testing.T) {
	b, err := NewUserNSBootstrap()
	if err != nil {
		t.Fatalf("NewUserNSBootstrap failed: %v", err)
	}
	defer b.Close()

	done := make(chan error, 1)
	go func() {
		done <- b.ChildSignalReady()
	}()
	if err := b.Ready.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("ChildSignalReady failed: %v", err)
	}
}

func TestUserNSBootstrap_ErrorPropagation(t *testing.T) {
	b, err := NewUserNSBootstrap()
	if err != nil {
		t.Fatalf("NewUserNSBootstrap failed: %v", err)
	}
	defer b.Close()

	wantErr := "mapping write failed"
	go func() {
		_ = b.Errs.SignalError(&testMappingError{wantErr})
	}()

	if err := b.ChildWaitMapped(); err == nil || err.Error() != wantErr {
		t.Errorf("expected error %q, got %v", wantErr, err)
	}
}

type testMappingError struct{ msg string }

func (e *testMappingError) Error() string { return e.msg }

func TestWrapUserNSBootstrap_ReconstructsFromInheritedFDs(t *testing.T) {
	b, err := NewUserNSBootstrap()
	if err != nil {
		t.Fatalf("NewUserNSBootstrap failed: %v", err)
	}
	defer b.Close()

	wrapped := WrapUserNSBootstrap(int(b.Ready.File().Fd()), int(b.Errs.ParentFile().Fd()))

	done := make(chan error, 1)
	go func() {
		done <- wrapped.ChildSignalReady()
	}()
	if err := b.Ready.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("ChildSignalReady via wrapped bootstrap failed: %v", err)
	}

	go func() {
		_ = b.Errs.SignalError(&testMappingError{"wrapped mapping failed"})
	}()
	if err := wrapped.ChildWaitMapped(); err == nil || err.Error() != "wrapped mapping failed" {
		t.Errorf("expected wrapped bootstrap to observe the mapping error, got %v", err)
	}
}

func TestWriteMappings_RequiresRoot(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("writing /proc/<pid>/uid_map for another process requires root")
	}
	// Smoke-tested against a real child elsewhere (spawn package); here we
	// only confirm the function doesn't panic against our own pid, which
	// the kernel will reject with EPERM for a map size mismatch - that's
	// expected and not asserted on.
	_ = WriteMappings(os.Getpid(), 0, 0, 0, 0, true, true)
}
