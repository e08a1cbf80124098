package sandbox

import (
	"syscall"
	"testing"
)

func TestErrnoAction_KnownName(t *testing.T) {
	// errnoAction returns a concrete ScmpAction; we only check it doesn't
	// panic and that an unknown name falls back to EPERM rather than
	// erroring, matching errnoByName's lookup-or-default behaviour.
	_ = errnoAction("EACCES")
	_ = errnoAction("NOT_A_REAL_ERRNO")
	_ = errnoAction("")
}

func TestBuildAddressFamilyFilter_AllowList(t *testing.T) {
	prog, err := buildAddressFamilyFilter([]string{"AF_INET", "AF_INET6"}, true)
	if err != nil {
		t.Fatalf("buildAddressFamilyFilter failed: %v", err)
	}
	if len(prog) == 0 {
		t.Fatal("expected a non-empty BPF program")
	}
	// First instruction always loads the syscall number.
	if prog[0].Code != bpfLD|bpfW|bpfABS {
		t.Errorf("first instruction should load syscall nr, got code %#x", prog[0].Code)
	}
}

func TestBuildAddressFamilyFilter_DenyList(t *testing.T) {
	prog, err := buildAddressFamilyFilter([]string{"AF_PACKET"}, false)
	if err != nil {
		t.Fatalf("buildAddressFamilyFilter failed: %v", err)
	}
	if len(prog) == 0 {
		t.Fatal("expected a non-empty BPF program")
	}
}

func TestBuildAddressFamilyFilter_UnknownFamilyIgnored(t *testing.T) {
	prog, err := buildAddressFamilyFilter([]string{"AF_NOT_REAL"}, true)
	if err != nil {
		t.Fatalf("buildAddressFamilyFilter failed: %v", err)
	}
	// Unknown family contributes no comparison instruction, only the
	// fixed preamble and the default-action tail.
	if len(prog) != 4 {
		t.Errorf("expected 4 fixed instructions for an unrecognised family, got %d", len(prog))
	}
}

func TestRestrictAddressFamilies_EmptyIsNoop(t *testing.T) {
	if err := RestrictAddressFamilies(nil, true); err != nil {
		t.Errorf("RestrictAddressFamilies with no families should be a no-op: %v", err)
	}
}

func TestErrnoByNameCoversCommonErrnos(t *testing.T) {
	want := []syscall.Errno{syscall.EPERM, syscall.EACCES, syscall.ENOSYS, syscall.EINVAL}
	for _, errno := range want {
		found := false
		for _, v := range errnoByName {
			if v == errno {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("errnoByName missing entry for %v", errno)
		}
	}
}
