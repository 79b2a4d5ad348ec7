// Package service coordinates the pipeline stages: input resolution,
// change detection, workspace preparation, build, verification, run,
// analysis, validation, integration testing, and quality gating.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lei/vehicle-ci/internal/analyze"
	"github.com/lei/vehicle-ci/internal/artifact"
	"github.com/lei/vehicle-ci/internal/build"
	"github.com/lei/vehicle-ci/internal/config"
	"github.com/lei/vehicle-ci/internal/execx"
	"github.com/lei/vehicle-ci/internal/gate"
	"github.com/lei/vehicle-ci/internal/harness"
	"github.com/lei/vehicle-ci/internal/models"
	"github.com/lei/vehicle-ci/internal/pipeline"
	"github.com/lei/vehicle-ci/internal/resolver"
	"github.com/lei/vehicle-ci/internal/runner"
	"github.com/lei/vehicle-ci/internal/validate"
	"github.com/lei/vehicle-ci/internal/workspace"
	"github.com/lei/vehicle-ci/pkg/logger"
)

// ErrScenarioNotFound indicates the requested scenario doesn't exist
var ErrScenarioNotFound = errors.New("scenario not found")

// Service owns the stage collaborators for one workspace. It is not
// safe for concurrent invocations against the same workspace; callers
// needing that must serialize externally.
type Service struct {
	cfg      *config.Config
	logger   *logger.Logger
	resolver *resolver.Resolver
	change   *resolver.ChangeDetector
	prep     *workspace.Preparer
	builder  *build.Orchestrator
	verifier *artifact.Verifier
	super    *runner.Supervisor
	harness  *harness.Harness
	gates    *gate.Evaluator
}

// NewService wires the pipeline stages for the given configuration
func NewService(cfg *config.Config, log *logger.Logger) *Service {
	cmdRunner := execx.New()
	return &Service{
		cfg:      cfg,
		logger:   log,
		resolver: resolver.New(cfg, log),
		change:   resolver.NewChangeDetector(cfg, log),
		prep:     workspace.New(cfg, log),
		builder:  build.New(cfg, log, cmdRunner),
		verifier: artifact.New(cfg, log),
		super:    runner.New(cfg, log, cmdRunner),
		harness:  harness.New(cfg, log, harness.NewDocker(cmdRunner, log)),
		gates:    gate.New(log, cfg.Gate.MinScore, cfg.Gate.Strict),
	}
}

// Build runs input resolution through artifact verification. The
// change detector makes repeated invocations with identical input
// cheap; everything after it only runs on changed input.
func (s *Service) Build(ctx context.Context) (*pipeline.Report, error) {
	report := pipeline.NewReport("build")
	err := s.doBuild(ctx, report)
	report.Finish(err)
	s.persist(report)
	return report, err
}

func (s *Service) doBuild(ctx context.Context, report *pipeline.Report) error {
	input, err := s.resolver.Resolve()
	if err != nil {
		return err
	}
	report.Input = input

	rebuild, reason := s.change.ShouldRebuild(input)
	if !rebuild && !s.cfg.Build.ForceRebuild {
		verified, err := s.verifier.Verify()
		if err != nil {
			// The cached artifact is unusable after all; fall through
			// to a full rebuild instead of trusting it.
			s.logger.Warn("service: cached artifact rejected, rebuilding", "error", err)
		} else {
			s.logger.Info("service: skipping rebuild, input unchanged")
			report.Build = &models.BuildResult{
				Status:   models.BuildSuccess,
				Skipped:  true,
				Artifact: verified,
			}
			return nil
		}
	} else {
		s.logger.Info("service: rebuild required", "reason", reason)
	}

	if err := s.resolver.Install(input); err != nil {
		return err
	}

	if err := s.prep.Prepare(false); err != nil {
		return err
	}

	result, err := s.builder.Build(ctx)
	report.Build = result
	if err != nil {
		return err
	}

	// A reported success is only trusted once the artifact checks out.
	verified, err := s.verifier.Verify()
	if err != nil {
		return err
	}
	result.Artifact = verified
	return nil
}

// Run builds (or reuses) the artifact, executes it under the timeout,
// and annotates the outcome with log evidence.
func (s *Service) Run(ctx context.Context, timeout time.Duration) (*pipeline.Report, error) {
	report := pipeline.NewReport("run")
	err := s.doRun(ctx, report, timeout)
	report.Finish(err)
	s.persist(report)
	return report, err
}

func (s *Service) doRun(ctx context.Context, report *pipeline.Report, timeout time.Duration) error {
	if err := s.doBuild(ctx, report); err != nil {
		return err
	}

	outcome, err := s.super.Run(ctx, report.Build.Artifact, timeout)
	report.Run = outcome
	if outcome != nil {
		report.Output = analyze.Summarize(outcome.Log)
	}
	return err
}

// Validate runs the static checks against the resolved source without
// touching the build workspace. It can run standalone.
func (s *Service) Validate(_ context.Context) (*pipeline.Report, int, error) {
	report := pipeline.NewReport("validate")

	input, err := s.resolver.Resolve()
	if err != nil {
		report.Finish(err)
		s.persist(report)
		return report, 1, err
	}
	report.Input = input

	validation := validate.Validate(string(input.Content))
	report.Validation = validation
	report.Finish(nil)
	s.persist(report)

	s.logger.Info("service: validation complete",
		"verdict", validation.Verdict,
		"errors", validation.Errors,
		"warnings", validation.Warnings)
	return report, validate.ExitCode(validation), nil
}

// Test executes one named integration scenario in an ephemeral
// environment and feeds the results through the quality gate.
func (s *Service) Test(ctx context.Context, scenarioName string) (*pipeline.Report, error) {
	report := pipeline.NewReport("test")
	err := s.doTest(ctx, report, scenarioName)
	report.Finish(err)
	s.persist(report)
	return report, err
}

func (s *Service) doTest(ctx context.Context, report *pipeline.Report, scenarioName string) error {
	scenarios, err := config.LoadScenarios(s.cfg.Harness.ScenariosFile)
	if err != nil {
		return err
	}

	var scenario *models.TestScenario
	for _, sc := range scenarios {
		if sc.Name == scenarioName {
			scenario = sc
		}
	}
	if scenario == nil {
		return fmt.Errorf("%w: %s", ErrScenarioNotFound, scenarioName)
	}

	scenarioReport, err := s.harness.RunScenario(ctx, scenario)
	report.Scenario = scenarioReport
	if err != nil {
		return err
	}

	return s.applyGate(report)
}

// Gate evaluates the configured metrics against externally supplied
// measurements merged with whatever this report already carries.
func (s *Service) Gate(_ context.Context, observed map[string]float64) (*pipeline.Report, error) {
	report := pipeline.NewReport("gate")
	metrics, err := config.LoadGates(s.cfg.Gate.GatesFile)
	if err != nil {
		report.Finish(err)
		s.persist(report)
		return report, err
	}

	gateReport := s.gates.Evaluate(metrics, observed)
	report.Gate = gateReport
	var gateErr error
	if gateReport.Decision == models.DecisionFail {
		gateErr = pipeline.NewError(pipeline.KindGateCriticalFailure,
			"quality gate failed: score %.2f, %d critical failures",
			gateReport.Score, gateReport.CriticalFailures)
	}
	report.Finish(gateErr)
	s.persist(report)
	return report, gateErr
}

func (s *Service) applyGate(report *pipeline.Report) error {
	metrics, err := config.LoadGates(s.cfg.Gate.GatesFile)
	if err != nil {
		s.logger.Warn("service: gates file unavailable, skipping gate", "error", err)
		return nil
	}

	observed := map[string]float64{}
	if report.Scenario != nil && report.Scenario.Total > 0 {
		observed["assertions_passed_pct"] =
			float64(report.Scenario.Passed) / float64(report.Scenario.Total) * 100
	}
	if report.Build != nil {
		observed["build_time_seconds"] = report.Build.Duration.Seconds()
		if report.Build.Artifact != nil {
			observed["binary_size_mb"] = float64(report.Build.Artifact.Size) / (1024 * 1024)
		}
	}
	if report.Validation != nil {
		observed["validation_errors"] = float64(report.Validation.Errors)
	}
	if report.Output != nil {
		observed["run_error_count"] = float64(report.Output.ErrorCount)
	}

	// A scenario run only measures a subset of the metric table; gating
	// it on metrics this command cannot produce would fail every run.
	// The standalone gate command evaluates the full table.
	scoped := make([]models.GateMetric, 0, len(metrics))
	for _, m := range metrics {
		if _, ok := observed[m.Name]; ok {
			scoped = append(scoped, m)
		}
	}

	gateReport := s.gates.Evaluate(scoped, observed)
	report.Gate = gateReport
	if gateReport.Decision == models.DecisionFail {
		return pipeline.NewError(pipeline.KindGateCriticalFailure,
			"quality gate failed: score %.2f, %d critical failures",
			gateReport.Score, gateReport.CriticalFailures)
	}
	return nil
}

// Clean resets the workspace build state
func (s *Service) Clean(_ context.Context) error {
	return s.prep.Clean()
}

// Scenarios lists the configured integration scenarios
func (s *Service) Scenarios() ([]*models.TestScenario, error) {
	return config.LoadScenarios(s.cfg.Harness.ScenariosFile)
}

// LatestReport loads the most recently persisted report
func (s *Service) LatestReport() (*pipeline.Report, error) {
	data, err := os.ReadFile(s.cfg.Workspace.ReportPath)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	return pipeline.ParseReport(data)
}

// persist writes the report to the fixed report location; failures are
// logged, never escalated, so reporting can't break the pipeline.
func (s *Service) persist(report *pipeline.Report) {
	if err := report.Write(s.cfg.Workspace.ReportPath); err != nil {
		s.logger.Warn("service: report not persisted", "error", err)
	}
	if err := appendLogLine(s.cfg.Workspace.LogPath, report); err != nil {
		s.logger.Warn("service: log not appended", "error", err)
	}
}

func appendLogLine(path string, report *pipeline.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	status := "ok"
	if report.Error != "" {
		status = string(report.ErrorKind)
	}
	_, err = fmt.Fprintf(f, "%s %s %s %s\n",
		report.FinishedAt.Format(time.RFC3339), report.RunID, report.Command, status)
	return err
}
