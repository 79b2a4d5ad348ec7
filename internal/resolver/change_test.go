package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lei/vehicle-ci/internal/config"
	"github.com/lei/vehicle-ci/internal/models"
	"github.com/lei/vehicle-ci/pkg/logger"
)

func changeFixture(t *testing.T) (*config.Config, *ChangeDetector) {
	t.Helper()
	cfg := testConfig(t)
	return cfg, NewChangeDetector(cfg, logger.NewWithWriter(os.Stderr, "error", "text"))
}

func installFixture(t *testing.T, cfg *config.Config, source string, withArtifact bool) {
	t.Helper()
	writeFile(t, filepath.Join(cfg.Workspace.Dir, cfg.Workspace.SourceFile), source)
	if withArtifact {
		writeFile(t, filepath.Join(cfg.Workspace.Dir, cfg.Build.ArtifactPaths[0]), "binary")
	}
}

func TestShouldRebuild(t *testing.T) {
	tests := []struct {
		name        string
		installed   string
		incoming    string
		artifact    bool
		wantRebuild bool
	}{
		{"identical input skips rebuild", validSource, validSource, true, false},
		{"byte-different input rebuilds", validSource, validSource + "\n", true, true},
		{"whitespace-only change still rebuilds", validSource, validSource + " ", true, true},
		{"no prior artifact always rebuilds", validSource, validSource, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, d := changeFixture(t)
			installFixture(t, cfg, tt.installed, tt.artifact)

			input := &models.SourceInput{Content: []byte(tt.incoming)}
			rebuild, reason := d.ShouldRebuild(input)
			if rebuild != tt.wantRebuild {
				t.Errorf("ShouldRebuild() = %v (%s), want %v", rebuild, reason, tt.wantRebuild)
			}
		})
	}
}

func TestShouldRebuild_NoInstalledSource(t *testing.T) {
	cfg, d := changeFixture(t)
	// Artifact exists but source file is gone; must rebuild, never trust
	// the stale binary.
	writeFile(t, filepath.Join(cfg.Workspace.Dir, cfg.Build.ArtifactPaths[0]), "binary")

	rebuild, _ := d.ShouldRebuild(&models.SourceInput{Content: []byte(validSource)})
	if !rebuild {
		t.Error("ShouldRebuild() = false with missing installed source, want true")
	}
}
