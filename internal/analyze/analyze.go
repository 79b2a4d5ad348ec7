// Package analyze scans a captured run log for a fixed vocabulary of
// behavioral evidence. It annotates, it never fails the pipeline.
package analyze

import (
	"regexp"
	"strings"

	"github.com/lei/vehicle-ci/internal/models"
)

// maxErrorLines bounds the error excerpt in the summary
const maxErrorLines = 5

// category is one named evidence pattern. The registry replaces ad hoc
// grep calls with independently testable predicates.
type category struct {
	name    string
	pattern *regexp.Regexp
	count   func(*models.OutputSummary)
}

var categories = []category{
	{
		name:    "initialization",
		pattern: regexp.MustCompile(`(?i)(starting|started|initializ)`),
		count:   func(s *models.OutputSummary) { s.Initializations++ },
	},
	{
		name:    "connection",
		pattern: regexp.MustCompile(`(?i)connect(ed|ing)? to`),
		count:   func(s *models.OutputSummary) { s.Connections++ },
	},
	{
		name:    "subscription",
		pattern: regexp.MustCompile(`(?i)subscri(bed|ption|bing)`),
		count:   func(s *models.OutputSummary) { s.Subscriptions++ },
	},
	{
		name:    "signal",
		pattern: regexp.MustCompile(`(?i)(speed|signal|data ?point).*(update|received|changed)`),
		count:   func(s *models.OutputSummary) { s.SignalsReceived++ },
	},
}

var errorToken = regexp.MustCompile(`(?i)\berror\b`)

// Summarize produces the bounded evidence summary for a run log
func Summarize(log string) *models.OutputSummary {
	summary := &models.OutputSummary{}

	for _, line := range strings.Split(log, "\n") {
		for _, cat := range categories {
			if cat.pattern.MatchString(line) {
				cat.count(summary)
			}
		}
		if errorToken.MatchString(line) {
			summary.ErrorCount++
			if len(summary.FirstErrors) < maxErrorLines {
				summary.FirstErrors = append(summary.FirstErrors, strings.TrimSpace(line))
			}
		}
	}

	return summary
}
