package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure. Structural/configuration kinds
// abort the invocation immediately; the rest are recorded and surfaced
// in the final report.
type Kind string

const (
	KindNoInput             Kind = "NoInputProvided"
	KindInvalidSource       Kind = "InvalidSource"
	KindWorkspace           Kind = "WorkspaceMisconfigured"
	KindInvalidSpecURL      Kind = "InvalidSpecificationURL"
	KindDependencyInstall   Kind = "DependencyInstallFailed"
	KindCompileFailed       Kind = "CompileFailed"
	KindArtifactMissing     Kind = "ArtifactMissingDespiteSuccess"
	KindStaleArtifact       Kind = "StaleArtifact"
	KindRunCrashed          Kind = "RunCrashed"
	KindScenarioAssertion   Kind = "ScenarioAssertionFailed"
	KindGateCriticalFailure Kind = "QualityGateCriticalFailure"
)

// Error is a classified pipeline failure with a bounded log excerpt
type Error struct {
	Kind    Kind
	Message string
	LogTail string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error without a log excerpt
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error
func WrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from a classified error, or "" if the
// error is not a pipeline error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Fatal reports whether the error kind means the pipeline can no
// longer trust its own state and must abort rather than continue.
func (k Kind) Fatal() bool {
	switch k {
	case KindInvalidSource, KindWorkspace, KindInvalidSpecURL,
		KindArtifactMissing, KindStaleArtifact, KindNoInput:
		return true
	}
	return false
}

// remediation tips keyed by error kind, printed with every fatal error
var tips = map[Kind][]string{
	KindNoInput: {
		"mount your source at /input/app.cpp, or pipe it on stdin",
	},
	KindInvalidSource: {
		"the source must declare a class extending VehicleApp",
		"check that the file is not empty or truncated",
	},
	KindWorkspace: {
		"AppManifest.json and conanfile.txt must exist in the app directory",
		"this indicates a broken deployment, not a source problem",
	},
	KindInvalidSpecURL: {
		"the specification URL must start with http:// or https://",
	},
	KindCompileFailed: {
		"check for syntax errors in your source",
		"check for a missing #include",
		"check for unbalanced braces or parentheses",
		"check that every subscribed signal name exists in the model",
	},
	KindArtifactMissing: {
		"the build reported success but produced no executable",
		"run with --force-rebuild to discard cached build state",
	},
	KindStaleArtifact: {
		"the compiler silently reused a previous binary",
		"run clean and then build again",
	},
	KindRunCrashed: {
		"inspect the captured run log for the crash reason",
		"unavailable services degrade to simulation mode and are not the cause",
	},
}

// Tips returns the fixed remediation tips for an error kind
func Tips(kind Kind) []string {
	return tips[kind]
}

// LogTail returns the last n lines of a captured log, for bounded
// error excerpts.
func LogTail(log string, n int) string {
	lines := strings.Split(strings.TrimRight(log, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
