package sandbox

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"execd/execctx"
)

func TestApplyProcessTuning_Defaults(t *testing.T) {
	r := &execctx.Resources{TimerSlackNSec: execctx.TimerSlackInfinity}
	if err := ApplyProcessTuning(r); err != nil {
		t.Errorf("ApplyProcessTuning with all-default resources failed: %v", err)
	}
}

func TestApplyPersonality_InvalidSentinelIsNoop(t *testing.T) {
	if err := ApplyPersonality("invalid"); err != nil {
		t.Errorf("ApplyPersonality(invalid) should be a no-op, got %v", err)
	}
	if err := ApplyPersonality(""); err != nil {
		t.Errorf("ApplyPersonality(\"\") should be a no-op, got %v", err)
	}
}

func TestApplyPersonality_UnknownNameErrors(t *testing.T) {
	if err := ApplyPersonality("not-a-real-personality"); err == nil {
		t.Error("expected error for unknown personality name")
	}
}

func TestApplyRlimits_NilEntriesSkipped(t *testing.T) {
	r := &execctx.Resources{}
	if err := ApplyRlimits(r); err != nil {
		t.Errorf("ApplyRlimits with all-nil entries failed: %v", err)
	}
}

func TestApplyRlimits_SetsConfiguredLimit(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("raising RLIMIT_NOFILE reliably requires root in this environment")
	}
	var cur unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &cur); err != nil {
		t.Fatalf("Getrlimit failed: %v", err)
	}
	want := int64(cur.Cur)
	r := &execctx.Resources{}
	r.Rlimits[7] = &want
	if err := ApplyRlimits(r); err != nil {
		t.Errorf("ApplyRlimits failed: %v", err)
	}
}

func TestApplyRestrictRealtimeRTPrio_SkipsWhenExplicitLimitSet(t *testing.T) {
	explicit := int64(5)
	r := &execctx.Resources{}
	r.Rlimits[14] = &explicit
	if err := ApplyRestrictRealtimeRTPrio(r, true); err != nil {
		t.Errorf("ApplyRestrictRealtimeRTPrio should not touch an explicit rtprio limit: %v", err)
	}
}

func TestApplyUmask(t *testing.T) {
	ApplyUmask(0022)
	prev := unix.Umask(0022)
	unix.Umask(prev)
	if prev != 0022 {
		t.Errorf("ApplyUmask(0022) left umask %o, want 022", prev)
	}
}
