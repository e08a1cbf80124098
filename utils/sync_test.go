package utils

import "testing"

func TestSyncPipe_SignalWaitRoundTrip(t *testing.T) {
	p, err := NewSyncPipe()
	if err != nil {
		t.Fatalf("NewSyncPipe failed: %v", err)
	}
	defer p.Close()

	if err := p.Signal(); err != nil {
		t.Fatalf("Signal failed: %v", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
}

func TestWrapSyncPipeParent_ReadsFromInheritedFD(t *testing.T) {
	p, err := NewSyncPipe()
	if err != nil {
		t.Fatalf("NewSyncPipe failed: %v", err)
	}
	defer p.Close()

	wrapped := WrapSyncPipeParent(int(p.ParentFile().Fd()))
	if err := p.Signal(); err != nil {
		t.Fatalf("Signal failed: %v", err)
	}
	if err := wrapped.Wait(); err != nil {
		t.Fatalf("Wait via wrapped pipe failed: %v", err)
	}
}
