// Package build sequences vehicle-model generation, dependency
// installation, and compilation, classifying each step's exit code and
// log content into a BuildResult.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lei/vehicle-ci/internal/config"
	"github.com/lei/vehicle-ci/internal/execx"
	"github.com/lei/vehicle-ci/internal/models"
	"github.com/lei/vehicle-ci/internal/pipeline"
	"github.com/lei/vehicle-ci/pkg/logger"
)

// failureMarkers are toolchain log strings that mean the compile step
// failed even when the wrapping build script exited zero. The build
// tool has been observed reporting success while silently reusing a
// previous binary; scanning the log closes that hole.
var failureMarkers = []string{
	"build stopped",
	"compilation terminated",
	"error:",
	"fatal error",
	"undefined reference",
}

// logTailLines bounds the excerpt surfaced on failure
const logTailLines = 50

// Orchestrator produces a BuildResult from a prepared workspace
type Orchestrator struct {
	cfg    *config.Config
	logger *logger.Logger
	runner execx.Runner
}

// New creates a build orchestrator
func New(cfg *config.Config, log *logger.Logger, runner execx.Runner) *Orchestrator {
	return &Orchestrator{cfg: cfg, logger: log, runner: runner}
}

// Build runs the three stages in order. Each stage is individually
// skippable via configuration; a hard failure stops the sequence.
func (o *Orchestrator) Build(ctx context.Context) (*models.BuildResult, error) {
	start := time.Now()
	result := &models.BuildResult{Status: models.BuildSuccess}
	var log strings.Builder

	if err := o.generateModel(ctx, &log); err != nil {
		return o.failed(result, &log, start), err
	}

	if err := o.installDependencies(ctx, result, &log); err != nil {
		return o.failed(result, &log, start), err
	}

	if err := o.compile(ctx, &log); err != nil {
		return o.failed(result, &log, start), err
	}

	result.Log = log.String()
	result.Duration = time.Since(start)
	if len(result.Warnings) > 0 {
		result.Status = models.BuildSuccessWithWarnings
	}
	o.logger.Info("build: completed", "status", result.Status, "duration", result.Duration)
	return result, nil
}

// generateModel regenerates the vehicle model from the specification
// document. Skipped when a generated model already exists and
// regeneration was not forced.
func (o *Orchestrator) generateModel(ctx context.Context, log *strings.Builder) error {
	if o.cfg.Build.SkipModelGen {
		o.logger.Info("build: model generation skipped by flag")
		return nil
	}

	modelDir := filepath.Join(o.cfg.Workspace.Dir, o.cfg.Workspace.ModelDir)
	if !o.cfg.Build.ForceRebuild {
		if info, err := os.Stat(modelDir); err == nil && info.IsDir() {
			o.logger.Info("build: generated model present, skipping regeneration",
				"dir", modelDir)
			return nil
		}
	}

	o.logger.Info("build: generating vehicle model")
	res, err := o.run(ctx, o.cfg.Build.GenScript, nil, log)
	if err != nil {
		return pipeline.WrapError(pipeline.KindCompileFailed, err, "model generation failed to start")
	}
	if res.ExitCode != 0 {
		return &pipeline.Error{
			Kind:    pipeline.KindCompileFailed,
			Message: fmt.Sprintf("model generation exited %d", res.ExitCode),
			LogTail: pipeline.LogTail(res.Output, logTailLines),
		}
	}
	return nil
}

// installDependencies invokes the external dependency manager. A
// failure is downgraded to a warning when a dependency cache already
// exists; with no cache at all it is fatal.
func (o *Orchestrator) installDependencies(ctx context.Context, result *models.BuildResult, log *strings.Builder) error {
	if o.cfg.Build.SkipDeps {
		o.logger.Info("build: dependency install skipped by flag")
		return nil
	}

	o.logger.Info("build: installing dependencies")
	res, err := o.run(ctx, o.cfg.Build.InstallScript, nil, log)
	if err == nil && res.ExitCode == 0 {
		return nil
	}

	if o.dependencyCacheExists() {
		msg := "dependency install failed, continuing with cached dependencies"
		o.logger.Warn("build: " + msg)
		result.Warnings = append(result.Warnings, msg)
		return nil
	}

	detail := "dependency install failed and no dependency cache exists"
	if err != nil {
		return pipeline.WrapError(pipeline.KindDependencyInstall, err, "%s", detail)
	}
	return &pipeline.Error{
		Kind:    pipeline.KindDependencyInstall,
		Message: fmt.Sprintf("%s (exit %d)", detail, res.ExitCode),
		LogTail: pipeline.LogTail(res.Output, logTailLines),
	}
}

// compile invokes the build tool in release configuration. Failure on
// non-zero exit OR failure markers in the log, even with exit 0.
func (o *Orchestrator) compile(ctx context.Context, log *strings.Builder) error {
	o.logger.Info("build: compiling application")
	res, err := o.run(ctx, o.cfg.Build.BuildScript, []string{"-r"}, log)
	if err != nil {
		return pipeline.WrapError(pipeline.KindCompileFailed, err, "compile failed to start")
	}

	if res.ExitCode != 0 {
		return &pipeline.Error{
			Kind:    pipeline.KindCompileFailed,
			Message: fmt.Sprintf("build tool exited %d", res.ExitCode),
			LogTail: pipeline.LogTail(res.Output, logTailLines),
		}
	}

	if marker := matchFailureMarker(res.Output); marker != "" {
		return &pipeline.Error{
			Kind:    pipeline.KindCompileFailed,
			Message: fmt.Sprintf("build tool exited 0 but log contains failure marker %q", marker),
			LogTail: pipeline.LogTail(res.Output, logTailLines),
		}
	}

	return nil
}

func (o *Orchestrator) run(ctx context.Context, script string, args []string, log *strings.Builder) (*execx.Result, error) {
	res, err := o.runner.Run(ctx, execx.Spec{
		Name: script,
		Args: args,
		Dir:  o.cfg.Workspace.Dir,
	})
	if res != nil {
		log.WriteString(res.Output)
	}
	return res, err
}

func (o *Orchestrator) dependencyCacheExists() bool {
	info, err := os.Stat(o.cfg.Workspace.ConanCache)
	return err == nil && info.IsDir()
}

func (o *Orchestrator) failed(result *models.BuildResult, log *strings.Builder, start time.Time) *models.BuildResult {
	result.Status = models.BuildFailure
	result.Log = log.String()
	result.Duration = time.Since(start)
	return result
}

func matchFailureMarker(output string) string {
	lowered := strings.ToLower(output)
	for _, marker := range failureMarkers {
		if strings.Contains(lowered, marker) {
			return marker
		}
	}
	return ""
}
