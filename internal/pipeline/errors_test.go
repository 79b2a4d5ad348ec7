package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := NewError(KindCompileFailed, "build tool exited %d", 2)
	if got := KindOf(err); got != KindCompileFailed {
		t.Errorf("KindOf() = %s, want %s", got, KindCompileFailed)
	}

	wrapped := fmt.Errorf("stage failed: %w", err)
	if got := KindOf(wrapped); got != KindCompileFailed {
		t.Errorf("KindOf(wrapped) = %s, want %s", got, KindCompileFailed)
	}

	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestWrapError_Unwraps(t *testing.T) {
	cause := errors.New("permission denied")
	err := WrapError(KindWorkspace, cause, "verify fixtures")

	if !errors.Is(err, cause) {
		t.Error("wrapped cause must survive errors.Is")
	}
	if !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("Error() = %q, want cause included", err.Error())
	}
}

func TestKindFatal(t *testing.T) {
	tests := []struct {
		kind  Kind
		fatal bool
	}{
		{KindInvalidSource, true},
		{KindWorkspace, true},
		{KindInvalidSpecURL, true},
		{KindArtifactMissing, true},
		{KindStaleArtifact, true},
		{KindDependencyInstall, false},
		{KindRunCrashed, false},
		{KindScenarioAssertion, false},
	}

	for _, tt := range tests {
		if got := tt.kind.Fatal(); got != tt.fatal {
			t.Errorf("%s.Fatal() = %v, want %v", tt.kind, got, tt.fatal)
		}
	}
}

func TestLogTail(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 100; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}

	tail := LogTail(b.String(), 50)
	lines := strings.Split(tail, "\n")
	if len(lines) != 50 {
		t.Fatalf("LogTail() lines = %d, want 50", len(lines))
	}
	if lines[0] != "line 51" || lines[49] != "line 100" {
		t.Errorf("LogTail() window = [%s .. %s], want [line 51 .. line 100]", lines[0], lines[49])
	}

	if got := LogTail("short\n", 50); got != "short" {
		t.Errorf("LogTail(short) = %q", got)
	}
}

func TestTips_KnownKinds(t *testing.T) {
	if len(Tips(KindCompileFailed)) == 0 {
		t.Error("CompileFailed must carry remediation tips")
	}
	if len(Tips(Kind("nope"))) != 0 {
		t.Error("unknown kind must have no tips")
	}
}
