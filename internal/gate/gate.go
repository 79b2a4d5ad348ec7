// Package gate evaluates named metrics against declared thresholds
// and produces the aggregate pipeline verdict.
package gate

import (
	"math"

	"github.com/lei/vehicle-ci/internal/models"
	"github.com/lei/vehicle-ci/pkg/logger"
)

// Evaluator applies a metric table to observed values
type Evaluator struct {
	logger   *logger.Logger
	minScore float64
	strict   bool
}

// New creates an evaluator. minScore is the aggregate percentage below
// which a non-strict run is downgraded to Warn.
func New(log *logger.Logger, minScore float64, strict bool) *Evaluator {
	return &Evaluator{logger: log, minScore: minScore, strict: strict}
}

// Evaluate compares every defined metric against its observed value.
// Metrics with no observation count as failed: an unmeasured gate is
// not a passed gate. Criticality comes from the definition alone.
func (e *Evaluator) Evaluate(metrics []models.GateMetric, observed map[string]float64) *models.GateReport {
	report := &models.GateReport{Results: []models.GateResult{}}

	passed := 0
	for _, metric := range metrics {
		value, measured := observed[metric.Name]
		ok := measured && compare(value, metric.Threshold, metric.Direction)

		result := models.GateResult{
			Metric:   metric.Name,
			Observed: value,
			Critical: metric.Critical,
		}
		switch {
		case ok:
			result.Status = models.GatePass
			passed++
		case metric.Critical:
			result.Status = models.GateFail
			report.CriticalFailures++
		default:
			// Non-critical misses should not block, only flag.
			result.Status = models.GateWarn
		}
		report.Results = append(report.Results, result)

		e.logger.Debug("gate: metric evaluated",
			"metric", metric.Name, "observed", value, "measured", measured,
			"threshold", metric.Threshold, "status", result.Status)
	}

	total := len(metrics)
	if total > 0 {
		report.Score = math.Round(float64(passed)/float64(total)*10000) / 100
	} else {
		report.Score = 100
	}

	switch {
	case report.CriticalFailures > 0:
		report.Decision = models.DecisionFail
	case e.strict && passed != total:
		report.Decision = models.DecisionFail
	case report.Score < e.minScore:
		report.Decision = models.DecisionWarn
	default:
		report.Decision = models.DecisionPass
	}

	e.logger.Info("gate: evaluation complete",
		"score", report.Score,
		"critical_failures", report.CriticalFailures,
		"decision", report.Decision)
	return report
}

func compare(observed, threshold float64, direction models.GateDirection) bool {
	switch direction {
	case models.DirectionAtMost:
		return observed <= threshold
	case models.DirectionAtLeast:
		return observed >= threshold
	case models.DirectionEquals:
		return observed == threshold
	default:
		return false
	}
}
