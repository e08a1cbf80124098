package stdio

import (
	"bytes"
	"os"
	"testing"
)

func TestOpenNull(t *testing.T) {
	f, err := openNull(os.O_WRONLY)
	if err != nil {
		t.Fatalf("openNull failed: %v", err)
	}
	defer f.Close()
	if f.Name() != os.DevNull {
		t.Errorf("expected %s, got %s", os.DevNull, f.Name())
	}
}

func TestMaterializeStdinData(t *testing.T) {
	data := []byte("hello from set-credential-like inline blob\n")
	f, err := materializeStdinData(data)
	if err != nil {
		t.Fatalf("materializeStdinData failed: %v", err)
	}
	defer f.Close()

	buf := make([]byte, len(data))
	n, err := f.Read(buf)
	if err != nil {
		t.Fatalf("read memfd: %v", err)
	}
	if !bytes.Equal(buf[:n], data) {
		t.Errorf("read %q, want %q", buf[:n], data)
	}

	// Sealed memfds must reject further writes.
	if _, err := f.Write([]byte("x")); err == nil {
		t.Error("expected write to sealed memfd to fail")
	}
}

func TestDupFD(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	dup, err := dupFD(int(r.Fd()))
	if err != nil {
		t.Fatalf("dupFD failed: %v", err)
	}
	defer dup.Close()

	if dup.Fd() == r.Fd() {
		t.Error("expected a distinct fd from dup")
	}
}
