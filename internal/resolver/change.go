package resolver

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/lei/vehicle-ci/internal/config"
	"github.com/lei/vehicle-ci/internal/models"
	"github.com/lei/vehicle-ci/pkg/logger"
)

// ChangeDetector decides whether the build orchestrator must run for a
// newly resolved input. It runs before any expensive stage so repeated
// invocations with identical input stay cheap.
type ChangeDetector struct {
	cfg    *config.Config
	logger *logger.Logger
}

// NewChangeDetector creates a change detector
func NewChangeDetector(cfg *config.Config, log *logger.Logger) *ChangeDetector {
	return &ChangeDetector{cfg: cfg, logger: log}
}

// ShouldRebuild reports whether a full rebuild is required. Equality
// is exact-byte, not semantic: whitespace-only edits still rebuild, so
// a cheap heuristic can never produce a false negative.
func (d *ChangeDetector) ShouldRebuild(input *models.SourceInput) (bool, string) {
	if !d.artifactExists() {
		return true, "no previous artifact"
	}

	installed, err := os.ReadFile(filepath.Join(d.cfg.Workspace.Dir, d.cfg.Workspace.SourceFile))
	if err != nil {
		return true, "no installed source"
	}

	if bytes.Equal(installed, input.Content) {
		d.logger.Info("change: skipping rebuild, input unchanged",
			"sha256", digest(input.Content))
		return false, "input unchanged"
	}

	d.logger.Info("change: input differs from installed source, full rebuild",
		"installed_sha256", digest(installed),
		"input_sha256", digest(input.Content))
	return true, "input changed"
}

// artifactExists checks the ordered candidate locations for any prior
// build output
func (d *ChangeDetector) artifactExists() bool {
	for _, rel := range d.cfg.Build.ArtifactPaths {
		if info, err := os.Stat(filepath.Join(d.cfg.Workspace.Dir, rel)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

func digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:8])
}
