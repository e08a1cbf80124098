package pipeline

import (
	"bytes"
	"strings"
	"testing"

	"execd/execctx"
)

// fakeTTY pairs an input buffer with an output buffer behind a single
// io.ReadWriter, standing in for the confirm-spawn terminal.
type fakeTTY struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func newFakeTTY(input string) *fakeTTY {
	return &fakeTTY{in: bytes.NewBufferString(input), out: &bytes.Buffer{}}
}

func (f *fakeTTY) Read(p []byte) (int, error)  { return f.in.Read(p) }
func (f *fakeTTY) Write(p []byte) (int, error) { return f.out.Write(p) }

func TestConfirmMenu_Execute(t *testing.T) {
	tty := newFakeTTY("y\n")
	got, err := confirmMenu(tty, "/bin/true", "unit.service")
	if err != nil {
		t.Fatalf("confirmMenu failed: %v", err)
	}
	if got != ConfirmExecute {
		t.Errorf("got %v, want ConfirmExecute", got)
	}
}

func TestConfirmMenu_ContinueAllExecutes(t *testing.T) {
	tty := newFakeTTY("c\n")
	got, err := confirmMenu(tty, "/bin/true", "unit.service")
	if err != nil {
		t.Fatalf("confirmMenu failed: %v", err)
	}
	if got != ConfirmExecute {
		t.Errorf("got %v, want ConfirmExecute", got)
	}
}

func TestConfirmMenu_FakeFailure(t *testing.T) {
	tty := newFakeTTY("f\n")
	got, err := confirmMenu(tty, "/bin/true", "unit.service")
	if err != nil {
		t.Fatalf("confirmMenu failed: %v", err)
	}
	if got != ConfirmFakeFailure {
		t.Errorf("got %v, want ConfirmFakeFailure", got)
	}
}

func TestConfirmMenu_FakeSuccess(t *testing.T) {
	tty := newFakeTTY("s\n")
	got, err := confirmMenu(tty, "/bin/true", "unit.service")
	if err != nil {
		t.Fatalf("confirmMenu failed: %v", err)
	}
	if got != ConfirmFakeSuccess {
		t.Errorf("got %v, want ConfirmFakeSuccess", got)
	}
}

func TestConfirmMenu_NAliasesToFakeFailure(t *testing.T) {
	tty := newFakeTTY("n\n")
	got, err := confirmMenu(tty, "/bin/true", "unit.service")
	if err != nil {
		t.Fatalf("confirmMenu failed: %v", err)
	}
	if got != ConfirmFakeFailure {
		t.Errorf("got %v, want ConfirmFakeFailure (n aliases to f)", got)
	}
	if !strings.Contains(tty.out.String(), "not a valid confirmation option") {
		t.Error("expected a diagnostic explaining the 'n' alias")
	}
}

func TestConfirmMenu_HelpInfoDumpJobsReprompt(t *testing.T) {
	tty := newFakeTTY("h\ni\nD\nj\ny\n")
	got, err := confirmMenu(tty, "/bin/true", "unit.service")
	if err != nil {
		t.Fatalf("confirmMenu failed: %v", err)
	}
	if got != ConfirmExecute {
		t.Errorf("got %v, want ConfirmExecute after re-prompting", got)
	}
	out := tty.out.String()
	if !strings.Contains(out, "help") && !strings.Contains(out, "y = yes") {
		t.Error("expected help text to be printed")
	}
	if !strings.Contains(out, "unit: unit.service") {
		t.Error("expected info line naming the unit")
	}
}

func TestConfirmMenu_UnknownOptionReprompts(t *testing.T) {
	tty := newFakeTTY("z\ny\n")
	got, err := confirmMenu(tty, "/bin/true", "unit.service")
	if err != nil {
		t.Fatalf("confirmMenu failed: %v", err)
	}
	if got != ConfirmExecute {
		t.Errorf("got %v, want ConfirmExecute after invalid option re-prompt", got)
	}
}

func TestConfirmMenu_BlankLinesReprompt(t *testing.T) {
	tty := newFakeTTY("\n\ny\n")
	got, err := confirmMenu(tty, "/bin/true", "unit.service")
	if err != nil {
		t.Fatalf("confirmMenu failed: %v", err)
	}
	if got != ConfirmExecute {
		t.Errorf("got %v, want ConfirmExecute", got)
	}
}

func TestConfirmSpawn_NoTTYConfiguredIsNoop(t *testing.T) {
	params := &execctx.Parameters{}
	got, err := ConfirmSpawn(params, "/bin/true")
	if err != nil {
		t.Fatalf("ConfirmSpawn failed: %v", err)
	}
	if got != ConfirmExecute {
		t.Errorf("got %v, want ConfirmExecute when no tty is configured", got)
	}
}
