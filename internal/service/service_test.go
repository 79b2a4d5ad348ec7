package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lei/vehicle-ci/internal/config"
	"github.com/lei/vehicle-ci/internal/models"
	"github.com/lei/vehicle-ci/pkg/logger"
)

const validSource = `#include "sdk/VehicleApp.h"
#include "sdk/Logger.h"

class SpeedApp : public VehicleApp {
public:
	void onStart() override {
		logger().info("started");
		subscribeDataPoints("Vehicle.Speed");
	}
};
`

// fixture builds a self-contained workspace: fixtures, build scripts
// that produce a real executable, and a mounted input file.
func fixture(t *testing.T) (*Service, *config.Config) {
	t.Helper()
	ws := t.TempDir()
	cfg := config.Default()
	cfg.Workspace.Dir = ws
	cfg.Workspace.ReportPath = filepath.Join(ws, "report.json")
	cfg.Workspace.LogPath = filepath.Join(ws, "pipeline.log")
	cfg.Input.MountFile = filepath.Join(ws, "input-app.cpp")
	cfg.Input.MountDir = filepath.Join(ws, "no-such-dir")
	cfg.Input.AltMount = filepath.Join(ws, "no-such-file.cpp")

	mustWrite(t, filepath.Join(ws, cfg.Workspace.Manifest), `{"vehicleModel":{"src":"https://example.org/vss.json"}}`)
	mustWrite(t, filepath.Join(ws, cfg.Workspace.DepsFile), "[requires]\nvehicle-app-sdk/0.7\n")
	mustWrite(t, cfg.Input.MountFile, validSource)

	// Pre-generated model dir so model generation is skipped.
	if err := os.MkdirAll(filepath.Join(ws, cfg.Workspace.ModelDir), 0o755); err != nil {
		t.Fatal(err)
	}
	// Conan cache present so a deps failure would degrade, not abort.
	cfg.Workspace.ConanCache = ws

	mustScript(t, filepath.Join(ws, "install_dependencies.sh"), "#!/bin/sh\nexit 0\n")
	mustScript(t, filepath.Join(ws, "build.sh"),
		"#!/bin/sh\nmkdir -p build/bin\nprintf '#!/bin/sh\\nexit 0\\n' > build/bin/app\nchmod +x build/bin/app\n")

	log := logger.NewWithWriter(os.Stderr, "error", "text")
	svc := NewService(cfg, log)
	svc.resolver.StdinPiped = false
	return svc, cfg
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustScript(t *testing.T, path, content string) {
	t.Helper()
	mustWrite(t, path, content)
	if err := os.Chmod(path, 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestBuild_EndToEnd(t *testing.T) {
	svc, cfg := fixture(t)

	report, err := svc.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if report.Build == nil || report.Build.Status != models.BuildSuccess {
		t.Fatalf("build status = %+v, want success", report.Build)
	}
	if report.Build.Skipped {
		t.Error("first build must not be skipped")
	}
	if report.Build.Artifact == nil {
		t.Fatal("successful build must carry a verified artifact")
	}
	if report.Input.Origin != models.OriginMountedFile {
		t.Errorf("origin = %s, want %s", report.Input.Origin, models.OriginMountedFile)
	}
	if _, err := os.Stat(cfg.Workspace.ReportPath); err != nil {
		t.Errorf("report not persisted: %v", err)
	}
}

func TestBuild_SecondRunSkipsRebuild(t *testing.T) {
	svc, _ := fixture(t)

	if _, err := svc.Build(context.Background()); err != nil {
		t.Fatalf("first Build() error = %v", err)
	}
	report, err := svc.Build(context.Background())
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	if !report.Build.Skipped {
		t.Error("unchanged input must skip the rebuild")
	}
	if report.Build.Artifact == nil {
		t.Error("skipped build must still report the verified artifact")
	}
}

func TestBuild_ChangedInputRebuilds(t *testing.T) {
	svc, cfg := fixture(t)

	if _, err := svc.Build(context.Background()); err != nil {
		t.Fatalf("first Build() error = %v", err)
	}
	mustWrite(t, cfg.Input.MountFile, validSource+"// changed\n")

	report, err := svc.Build(context.Background())
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	if report.Build.Skipped {
		t.Error("changed input must trigger a rebuild")
	}
}

func TestRun_TimeoutIsSuccess(t *testing.T) {
	svc, cfg := fixture(t)
	// Artifact that never exits on its own.
	mustScript(t, filepath.Join(cfg.Workspace.Dir, "build.sh"),
		"#!/bin/sh\nmkdir -p build/bin\nprintf '#!/bin/sh\\nsleep 60\\n' > build/bin/app\nchmod +x build/bin/app\n")

	report, err := svc.Run(context.Background(), 1*time.Second)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Run.Status != models.RunTimeoutReached {
		t.Errorf("status = %s, want %s", report.Run.Status, models.RunTimeoutReached)
	}
	if !report.Run.Status.Success() {
		t.Error("timeout must count as success")
	}
	if report.Output == nil {
		t.Error("run must attach an output summary")
	}
}

func TestValidate_PassingSource(t *testing.T) {
	svc, _ := fixture(t)

	report, exitCode, err := svc.Validate(context.Background())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if report.Validation == nil {
		t.Fatal("validation report missing")
	}
	if report.Validation.Errors != 0 {
		t.Errorf("errors = %d, want 0, findings: %+v", report.Validation.Errors, report.Validation.Findings)
	}
	if exitCode == 1 {
		t.Errorf("exit code = %d, want 0 or 2", exitCode)
	}
}

func TestValidate_BrokenSourceFails(t *testing.T) {
	svc, cfg := fixture(t)
	mustWrite(t, cfg.Input.MountFile, "int main() { return 0; }\n")

	report, exitCode, err := svc.Validate(context.Background())
	if err == nil {
		t.Fatal("Validate() must reject source without the app base class")
	}
	if exitCode != 1 {
		t.Errorf("exit code = %d, want 1", exitCode)
	}
	_ = report
}

func TestTest_UnknownScenario(t *testing.T) {
	svc, cfg := fixture(t)
	mustWrite(t, filepath.Join(cfg.Workspace.Dir, "scenarios.yaml"),
		"scenarios:\n  - name: speed-alert\n    injections:\n      - signal: Vehicle.Speed\n        value: \"42\"\n    assertions:\n      - speed update\n")
	cfg.Harness.ScenariosFile = filepath.Join(cfg.Workspace.Dir, "scenarios.yaml")

	_, err := svc.Test(context.Background(), "does-not-exist")
	if err == nil {
		t.Fatal("unknown scenario must error")
	}
}

func TestGate_EvaluatesFullTable(t *testing.T) {
	svc, cfg := fixture(t)
	gates := "gates:\n" +
		"  - name: validation_errors\n" +
		"    threshold: 0\n" +
		"    direction: equals\n" +
		"    critical: true\n" +
		"  - name: binary_size_mb\n" +
		"    threshold: 50\n" +
		"    direction: at-most\n"
	mustWrite(t, filepath.Join(cfg.Workspace.Dir, "gates.yaml"), gates)
	cfg.Gate.GatesFile = filepath.Join(cfg.Workspace.Dir, "gates.yaml")

	report, err := svc.Gate(context.Background(), map[string]float64{
		"validation_errors": 0,
		"binary_size_mb":    12,
	})
	if err != nil {
		t.Fatalf("Gate() error = %v", err)
	}
	if report.Gate.Decision != models.DecisionPass {
		t.Errorf("decision = %s, want pass", report.Gate.Decision)
	}

	// An unmeasured critical metric fails the standalone gate.
	_, err = svc.Gate(context.Background(), map[string]float64{
		"binary_size_mb": 12,
	})
	if err == nil {
		t.Error("Gate() must fail when a critical metric is unmeasured")
	}
}

func TestLatestReport_RoundTrip(t *testing.T) {
	svc, _ := fixture(t)

	written, err := svc.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	loaded, err := svc.LatestReport()
	if err != nil {
		t.Fatalf("LatestReport() error = %v", err)
	}
	if loaded.RunID != written.RunID {
		t.Errorf("RunID = %s, want %s", loaded.RunID, written.RunID)
	}
	if loaded.Command != "build" {
		t.Errorf("Command = %s, want build", loaded.Command)
	}
}
