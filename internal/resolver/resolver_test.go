package resolver

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lei/vehicle-ci/internal/config"
	"github.com/lei/vehicle-ci/internal/models"
	"github.com/lei/vehicle-ci/internal/pipeline"
	"github.com/lei/vehicle-ci/pkg/logger"
)

const validSource = `#include "sdk/VehicleApp.h"
class MyApp : public VehicleApp {
public:
    void onStart() override {}
};
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Workspace.Dir = filepath.Join(root, "workspace")
	cfg.Input.MountFile = filepath.Join(root, "input", "app.cpp")
	cfg.Input.MountDir = filepath.Join(root, "input")
	cfg.Input.AltMount = filepath.Join(root, "app.cpp")
	return cfg
}

func testResolver(cfg *config.Config) *Resolver {
	return &Resolver{
		cfg:    cfg,
		logger: logger.NewWithWriter(os.Stderr, "error", "text"),
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolve_PriorityOrder(t *testing.T) {
	tests := []struct {
		name       string
		mountFile  bool
		dirFile    bool
		altMount   bool
		piped      bool
		wantOrigin models.InputOrigin
	}{
		{"mount file beats everything", true, true, true, true, models.OriginMountedFile},
		{"dir file beats alt mount", false, true, true, true, models.OriginMountedDir},
		{"alt mount beats stdin", false, false, true, true, models.OriginAltMount},
		{"stdin beats template", false, false, false, true, models.OriginPipedStream},
		{"template when nothing present", false, false, false, false, models.OriginBuiltin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			r := testResolver(cfg)

			if tt.mountFile {
				writeFile(t, cfg.Input.MountFile, validSource)
			}
			if tt.dirFile {
				writeFile(t, filepath.Join(cfg.Input.MountDir, cfg.Input.DirFile), validSource)
			}
			if tt.altMount {
				writeFile(t, cfg.Input.AltMount, validSource)
			}
			if tt.piped {
				r.StdinPiped = true
				r.Stdin = strings.NewReader(validSource)
			}

			input, err := r.Resolve()
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if input.Origin != tt.wantOrigin {
				t.Errorf("Resolve() origin = %s, want %s", input.Origin, tt.wantOrigin)
			}
		})
	}
}

func TestResolve_MountFileBeatsPipedContent(t *testing.T) {
	cfg := testConfig(t)
	r := testResolver(cfg)

	mounted := strings.Replace(validSource, "MyApp", "MountedApp", 1)
	writeFile(t, cfg.Input.MountFile, mounted)
	r.StdinPiped = true
	r.Stdin = strings.NewReader(validSource)

	input, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !strings.Contains(string(input.Content), "MountedApp") {
		t.Error("Resolve() returned piped content, want mounted file content")
	}
}

func TestResolve_InvalidSource(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty source", "   \n\t\n"},
		{"missing app class", "int main() { return 0; }\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			r := testResolver(cfg)
			writeFile(t, cfg.Input.MountFile, tt.content)

			_, err := r.Resolve()
			if err == nil {
				t.Fatal("Resolve() error = nil, want InvalidSource")
			}
			if kind := pipeline.KindOf(err); kind != pipeline.KindInvalidSource {
				t.Errorf("Resolve() error kind = %s, want %s", kind, pipeline.KindInvalidSource)
			}
		})
	}
}

func TestResolve_NoFallbackPastInvalidHigherChannel(t *testing.T) {
	cfg := testConfig(t)
	r := testResolver(cfg)

	// Higher-priority channel present but invalid; valid stdin below it
	// must not be consulted.
	writeFile(t, cfg.Input.MountFile, "not an app")
	r.StdinPiped = true
	r.Stdin = strings.NewReader(validSource)

	if _, err := r.Resolve(); err == nil {
		t.Fatal("Resolve() error = nil, want hard failure from higher-priority channel")
	}
}

func TestResolve_TemplateIsValid(t *testing.T) {
	cfg := testConfig(t)
	r := testResolver(cfg)

	input, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v, template must pass the structural gate", err)
	}
	if input.Lines == 0 || input.Bytes == 0 {
		t.Error("Resolve() template counts not derived")
	}
}

func TestInstall_OverwritesPrevious(t *testing.T) {
	cfg := testConfig(t)
	r := testResolver(cfg)

	dest := filepath.Join(cfg.Workspace.Dir, cfg.Workspace.SourceFile)
	writeFile(t, dest, "previous content")

	input := &models.SourceInput{Content: []byte(validSource), Origin: models.OriginPipedStream}
	if err := r.Install(input); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	installed, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(installed, []byte(validSource)) {
		t.Error("Install() did not overwrite the previously installed source")
	}
}
