package spawn

import (
	"os/exec"
	"testing"

	"execd/execctx"
)

func TestCommandLine(t *testing.T) {
	got := CommandLine("/usr/bin/echo", []string{"hello", "world"})
	want := "/usr/bin/echo hello world"
	if got != want {
		t.Errorf("CommandLine() = %q, want %q", got, want)
	}
}

func TestReloadMAC_Noop(t *testing.T) {
	if err := ReloadMAC(); err != nil {
		t.Errorf("ReloadMAC should be a no-op, got %v", err)
	}
}

func TestRecordExit_Success(t *testing.T) {
	status := &execctx.Status{}
	RecordExit(status, nil, nil)
	if status.SigchldCode != 1 || status.ExitStatus != 0 {
		t.Errorf("got code=%d status=%d, want code=1 status=0", status.SigchldCode, status.ExitStatus)
	}
	if status.ExitTimestamp.IsZero() {
		t.Error("expected ExitTimestamp to be set")
	}
}

func TestRecordExit_NonExitError(t *testing.T) {
	status := &execctx.Status{}
	RecordExit(status, nil, exec.ErrNotFound)
	if status.ExitStatus != -1 {
		t.Errorf("got ExitStatus=%d, want -1 for a non-ExitError failure", status.ExitStatus)
	}
}

func TestWriteHandoffFiles_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := &Spawner{Self: "/bin/true", RuntimeDir: dir}

	ctx := execctx.NewDefaultContext()
	ctx.User = "nobody"
	params := execctx.NewParameters("test.service")
	params.Environment = []string{"FOO=bar"}

	ctxPath, paramsPath, err := s.writeHandoffFiles(ctx, params, "test-invocation")
	if err != nil {
		t.Fatalf("writeHandoffFiles failed: %v", err)
	}

	loadedCtx, err := execctx.Load(ctxPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loadedCtx.User != "nobody" {
		t.Errorf("loaded context User = %q, want %q", loadedCtx.User, "nobody")
	}

	loadedParams, err := execctx.LoadParameters(paramsPath)
	if err != nil {
		t.Fatalf("LoadParameters failed: %v", err)
	}
	if loadedParams.UnitID != "test.service" {
		t.Errorf("loaded params UnitID = %q, want %q", loadedParams.UnitID, "test.service")
	}
}

func TestBuildExtraFiles_CountsSocketAndStorage(t *testing.T) {
	s := &Spawner{}
	params := &execctx.Parameters{
		SocketFDs:  []execctx.FdEntry{{FD: 10, Name: "a"}},
		StorageFDs: []execctx.FdEntry{{FD: 11, Name: "b"}, {FD: 12, Name: "c"}},
	}
	files, socketCount := s.buildExtraFiles(params)
	if socketCount != 1 {
		t.Errorf("socketCount = %d, want 1", socketCount)
	}
	if len(files) != 3 {
		t.Fatalf("len(files) = %d, want 3", len(files))
	}
}
