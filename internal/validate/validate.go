// Package validate performs source-level checks independent of
// compilation. Each check is a named, independently testable function
// contributing findings to a ternary Pass/Warn/Fail report.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lei/vehicle-ci/internal/models"
)

// Check inspects the raw source text and returns zero or more findings
type Check struct {
	Rule string
	Run  func(source string) []models.Finding
}

// Registry is the fixed set of checks, run in order
var Registry = []Check{
	{Rule: "app-base-type", Run: checkBaseType},
	{Rule: "sdk-include", Run: checkSDKInclude},
	{Rule: "logger-usage", Run: checkLogger},
	{Rule: "on-start-hook", Run: checkOnStart},
	{Rule: "signal-subscription", Run: checkSubscription},
	{Rule: "signal-query", Run: checkSignalQuery},
	{Rule: "brace-balance", Run: checkBraceBalance},
	{Rule: "paren-balance", Run: checkParenBalance},
	{Rule: "manual-allocation", Run: checkManualAllocation},
	{Rule: "error-handling", Run: checkErrorHandling},
	{Rule: "work-markers", Run: checkWorkMarkers},
}

// Validate runs every registered check and finalizes the report
func Validate(source string) *models.ValidationReport {
	report := &models.ValidationReport{Findings: []models.Finding{}}
	for _, check := range Registry {
		report.Findings = append(report.Findings, check.Run(source)...)
	}
	report.Finalize()
	return report
}

// ExitCode maps the ternary verdict onto the scripting contract:
// 0 clean, 1 any error, 2 warnings only.
func ExitCode(report *models.ValidationReport) int {
	switch report.Verdict {
	case models.VerdictFail:
		return 1
	case models.VerdictWarn:
		return 2
	default:
		return 0
	}
}

var (
	baseTypePattern    = regexp.MustCompile(`class\s+\w+\s*:\s*public\s+VehicleApp`)
	sdkIncludePattern  = regexp.MustCompile(`#include\s+["<]sdk/VehicleApp\.h[">]`)
	loggerPattern      = regexp.MustCompile(`logger\(\)\s*\.\s*(info|warn|error|debug)`)
	onStartPattern     = regexp.MustCompile(`void\s+onStart\s*\(`)
	subscribePattern   = regexp.MustCompile(`subscribeDataPoints?\s*\(`)
	signalQueryPattern = regexp.MustCompile(`(getDataPoints?|\.get\s*\(|QueryBuilder::select)`)
	newPattern         = regexp.MustCompile(`\bnew\s+\w`)
	deletePattern      = regexp.MustCompile(`\bdelete\b`)
	errHandlingPattern = regexp.MustCompile(`\b(try|catch|onError)\b`)
	workMarkerPattern  = regexp.MustCompile(`//\s*(TODO|FIXME|XXX|HACK)\b`)
)

func checkBaseType(source string) []models.Finding {
	if baseTypePattern.MatchString(source) {
		return nil
	}
	return []models.Finding{{
		Rule:     "app-base-type",
		Severity: models.SeverityError,
		Message:  "no class extending VehicleApp found",
		Tip:      "declare: class MyApp : public VehicleApp { ... };",
	}}
}

func checkSDKInclude(source string) []models.Finding {
	if sdkIncludePattern.MatchString(source) {
		return nil
	}
	return []models.Finding{{
		Rule:     "sdk-include",
		Severity: models.SeverityWarning,
		Message:  "sdk/VehicleApp.h is not included",
		Tip:      `add: #include "sdk/VehicleApp.h"`,
	}}
}

func checkLogger(source string) []models.Finding {
	if loggerPattern.MatchString(source) {
		return nil
	}
	return []models.Finding{{
		Rule:     "logger-usage",
		Severity: models.SeverityWarning,
		Message:  "no logger() calls found",
		Tip:      `use logger().info("...") so the run log carries evidence`,
	}}
}

func checkOnStart(source string) []models.Finding {
	if onStartPattern.MatchString(source) {
		return nil
	}
	return []models.Finding{{
		Rule:     "on-start-hook",
		Severity: models.SeverityWarning,
		Message:  "no onStart lifecycle hook found",
		Tip:      "override void onStart() to set up subscriptions",
	}}
}

func checkSubscription(source string) []models.Finding {
	if subscribePattern.MatchString(source) {
		return nil
	}
	return []models.Finding{{
		Rule:     "signal-subscription",
		Severity: models.SeverityWarning,
		Message:  "no signal subscription call found",
		Tip:      "call subscribeDataPoints(...) to react to vehicle signals",
	}}
}

func checkSignalQuery(source string) []models.Finding {
	if signalQueryPattern.MatchString(source) {
		return nil
	}
	return []models.Finding{{
		Rule:     "signal-query",
		Severity: models.SeverityWarning,
		Message:  "no signal query or reaction call found",
		Tip:      "read values via reply.get(Vehicle.Speed) or QueryBuilder::select",
	}}
}

func checkBraceBalance(source string) []models.Finding {
	return balance(source, '{', '}', "brace-balance", "braces")
}

func checkParenBalance(source string) []models.Finding {
	return balance(source, '(', ')', "paren-balance", "parentheses")
}

// balance counts raw open/close characters. Counting is deliberately
// naive about strings and comments; the compiler has the final word,
// this check exists to explain the common case cheaply.
func balance(source string, open, closing rune, rule, what string) []models.Finding {
	opens := strings.Count(source, string(open))
	closes := strings.Count(source, string(closing))
	if opens == closes {
		return nil
	}
	return []models.Finding{{
		Rule:     rule,
		Severity: models.SeverityError,
		Message:  fmt.Sprintf("unbalanced %s: %d open vs %d close", what, opens, closes),
		Tip:      fmt.Sprintf("check for a missing %q or %q", open, closing),
	}}
}

func checkManualAllocation(source string) []models.Finding {
	if !newPattern.MatchString(source) || deletePattern.MatchString(source) {
		return nil
	}
	return []models.Finding{{
		Rule:     "manual-allocation",
		Severity: models.SeverityWarning,
		Message:  "manual new without a matching delete",
		Tip:      "prefer std::make_unique / std::make_shared",
	}}
}

func checkErrorHandling(source string) []models.Finding {
	if errHandlingPattern.MatchString(source) {
		return nil
	}
	return []models.Finding{{
		Rule:     "error-handling",
		Severity: models.SeverityWarning,
		Message:  "no error-handling construct found",
		Tip:      "handle subscription failures via ->onError(...) or try/catch",
	}}
}

func checkWorkMarkers(source string) []models.Finding {
	matches := workMarkerPattern.FindAllString(source, -1)
	if len(matches) == 0 {
		return nil
	}
	return []models.Finding{{
		Rule:     "work-markers",
		Severity: models.SeverityWarning,
		Message:  fmt.Sprintf("%d leftover work-marker comments", len(matches)),
		Tip:      "resolve TODO/FIXME comments before shipping",
	}}
}
