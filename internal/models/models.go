package models

import "time"

// InputOrigin identifies which input channel a source came from
type InputOrigin string

const (
	OriginMountedFile InputOrigin = "mounted-file"
	OriginMountedDir  InputOrigin = "mounted-dir"
	OriginAltMount    InputOrigin = "alt-mount"
	OriginPipedStream InputOrigin = "piped-stream"
	OriginBuiltin     InputOrigin = "builtin-template"
)

// SourceInput is the resolved application source for one invocation.
// It is materialized once by the input resolver and never mutated.
type SourceInput struct {
	Content []byte      `json:"-"`
	Origin  InputOrigin `json:"origin"`
	Lines   int         `json:"lines"`
	Bytes   int         `json:"bytes"`
}

// BuildStatus represents the outcome of a build
type BuildStatus string

const (
	BuildSuccess             BuildStatus = "success"
	BuildFailure             BuildStatus = "failure"
	BuildSuccessWithWarnings BuildStatus = "success_with_warnings"
)

// BuildResult captures one build orchestrator invocation
type BuildResult struct {
	Status   BuildStatus   `json:"status"`
	Log      string        `json:"-"`
	Duration time.Duration `json:"duration"`
	Skipped  bool          `json:"skipped"` // rebuild skipped, input unchanged
	Warnings []string      `json:"warnings,omitempty"`
	Artifact *Artifact     `json:"artifact,omitempty"`
}

// Artifact is the compiled executable produced by a build
type Artifact struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	Mode    uint32    `json:"mode"`
	ModTime time.Time `json:"mod_time"`
}

// RunStatus classifies how the supervised process terminated
type RunStatus string

const (
	RunNaturalExit    RunStatus = "natural_exit"
	RunTimeoutReached RunStatus = "timeout_reached"
	RunCrashed        RunStatus = "crashed"
)

// Success reports whether the run status counts as a passing run.
// Hitting the wall-clock timeout is expected for a long-lived demo
// service with no natural termination, so it is a success.
func (s RunStatus) Success() bool {
	return s == RunNaturalExit || s == RunTimeoutReached
}

// RunOutcome captures one supervised execution of the artifact
type RunOutcome struct {
	Status   RunStatus           `json:"status"`
	ExitCode int                 `json:"exit_code"`
	Log      string              `json:"-"`
	Elapsed  time.Duration       `json:"elapsed"`
	Services ServiceAvailability `json:"services"`
}

// ServiceAvailability maps a named optional dependency to its
// reachability, probed immediately before each run and never cached.
type ServiceAvailability map[string]bool

// Severity classifies a static validation finding
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one static-check result
type Finding struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Tip      string   `json:"tip,omitempty"`
}

// Verdict is the ternary validation outcome
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictWarn Verdict = "warn"
	VerdictFail Verdict = "fail"
)

// ValidationReport is an ordered list of findings plus derived counts
type ValidationReport struct {
	Findings []Finding `json:"findings"`
	Errors   int       `json:"errors"`
	Warnings int       `json:"warnings"`
	Verdict  Verdict   `json:"verdict"`
}

// Finalize computes counts and the overall verdict from the findings
func (r *ValidationReport) Finalize() {
	r.Errors, r.Warnings = 0, 0
	for _, f := range r.Findings {
		switch f.Severity {
		case SeverityError:
			r.Errors++
		case SeverityWarning:
			r.Warnings++
		}
	}
	switch {
	case r.Errors > 0:
		r.Verdict = VerdictFail
	case r.Warnings > 0:
		r.Verdict = VerdictWarn
	default:
		r.Verdict = VerdictPass
	}
}

// OutputSummary is the bounded evidence summary of a run log
type OutputSummary struct {
	Initializations int      `json:"initializations"`
	Connections     int      `json:"connections"`
	Subscriptions   int      `json:"subscriptions"`
	SignalsReceived int      `json:"signals_received"`
	ErrorCount      int      `json:"error_count"`
	FirstErrors     []string `json:"first_errors,omitempty"`
}

// Injection is one scripted signal write in a test scenario
type Injection struct {
	Signal string        `yaml:"signal" json:"signal"`
	Value  string        `yaml:"value" json:"value"`
	Settle time.Duration `yaml:"settle" json:"settle"`
}

// TestScenario is a named integration test: a sequence of signal
// injections plus the log patterns the app is expected to emit.
type TestScenario struct {
	Name       string      `yaml:"name" json:"name"`
	Injections []Injection `yaml:"injections" json:"injections"`
	Assertions []string    `yaml:"assertions" json:"assertions"`
}

// AssertionResult is one evaluated scenario assertion
type AssertionResult struct {
	Pattern string `json:"pattern"`
	Passed  bool   `json:"passed"`
}

// ScenarioReport aggregates one harness run. All assertions are
// evaluated; the harness never stops at the first failure.
type ScenarioReport struct {
	Scenario   string            `json:"scenario"`
	Assertions []AssertionResult `json:"assertions"`
	Passed     int               `json:"passed"`
	Total      int               `json:"total"`
	Elapsed    time.Duration     `json:"elapsed"`
}

// GateDirection declares how an observed value compares to a threshold
type GateDirection string

const (
	DirectionAtMost  GateDirection = "at-most"
	DirectionAtLeast GateDirection = "at-least"
	DirectionEquals  GateDirection = "equals"
)

// GateMetric defines one quality gate measurement. Criticality is a
// property of the definition, never inferred from the observed value.
type GateMetric struct {
	Name      string        `yaml:"name" json:"name"`
	Threshold float64       `yaml:"threshold" json:"threshold"`
	Direction GateDirection `yaml:"direction" json:"direction"`
	Critical  bool          `yaml:"critical" json:"critical"`
}

// GateStatus is the per-metric evaluation outcome
type GateStatus string

const (
	GatePass GateStatus = "pass"
	GateFail GateStatus = "fail"
	GateWarn GateStatus = "warn"
)

// GateResult is one evaluated metric
type GateResult struct {
	Metric   string     `json:"metric"`
	Observed float64    `json:"observed"`
	Status   GateStatus `json:"status"`
	Critical bool       `json:"critical"`
}

// GateDecision is the aggregate quality gate verdict
type GateDecision string

const (
	DecisionPass GateDecision = "pass"
	DecisionWarn GateDecision = "warn"
	DecisionFail GateDecision = "fail"
)

// GateReport aggregates all metrics evaluated in one run
type GateReport struct {
	Results          []GateResult `json:"results"`
	Score            float64      `json:"score"`
	CriticalFailures int          `json:"critical_failures"`
	Decision         GateDecision `json:"decision"`
}
