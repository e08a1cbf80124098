package pipeline

import "testing"

func TestStepCodeString(t *testing.T) {
	tests := []struct {
		code StepCode
		want string
	}{
		{ExitSuccess, "SUCCESS"},
		{ExitFDs, "FDS"},
		{ExitSeccomp, "SECCOMP"},
		{ExitCredentials, "CREDENTIALS"},
		{ExitConfirm, "CONFIRM"},
		{StepCode(9999), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("StepCode(%d).String() = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestStepCodesAreDistinct(t *testing.T) {
	seen := make(map[StepCode]bool)
	for code := range stepCodeNames {
		if seen[code] {
			t.Errorf("duplicate step code %d", code)
		}
		seen[code] = true
	}
}
