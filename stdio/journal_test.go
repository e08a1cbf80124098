package stdio

import "testing"

func TestBuildJournalHeader_LineCount(t *testing.T) {
	header := buildJournalHeader("myapp", "myunit.service", 30, true, false, true)

	lines := 0
	for _, b := range header {
		if b == '\n' {
			lines++
		}
	}
	if lines != 7 {
		t.Errorf("expected 7 lines, got %d: %q", lines, header)
	}
}

func TestBuildJournalHeader_Fields(t *testing.T) {
	cases := []struct {
		name        string
		levelPrefix bool
		isKmsg      bool
		isTerminal  bool
		wantBools   string // level-prefix, false, kmsg, terminal digits in order
	}{
		{"all-off", false, false, false, "0\n0\n0\n0\n"},
		{"all-on", true, true, true, "1\n0\n1\n1\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := buildJournalHeader("id", "unit", 14, tc.levelPrefix, tc.isKmsg, tc.isTerminal)
			// First two lines are identifier/unit, third is priority; the
			// remaining four lines are the boolean flags we assert on.
			want := "id\nunit\n14\n" + tc.wantBools
			if header != want {
				t.Errorf("header = %q, want %q", header, want)
			}
		})
	}
}

func TestJournalStreamEnv(t *testing.T) {
	js := &JournalStream{Dev: 8, Ino: 1234}
	if got, want := js.Env(), "8:1234"; got != want {
		t.Errorf("Env() = %q, want %q", got, want)
	}
}
