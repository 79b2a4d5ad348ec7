// Package artifact confirms that a successful build actually produced
// a usable, fresh executable.
package artifact

import (
	"os"
	"path/filepath"
	"time"

	"github.com/lei/vehicle-ci/internal/config"
	"github.com/lei/vehicle-ci/internal/models"
	"github.com/lei/vehicle-ci/internal/pipeline"
	"github.com/lei/vehicle-ci/pkg/logger"
)

// Verifier locates and checks the produced executable
type Verifier struct {
	cfg    *config.Config
	logger *logger.Logger

	// Now is injectable so tests can pin the verification instant
	Now func() time.Time
}

// New creates an artifact verifier
func New(cfg *config.Config, log *logger.Logger) *Verifier {
	return &Verifier{cfg: cfg, logger: log, Now: time.Now}
}

// Verify searches the ordered candidate locations and trusts the first
// existing artifact only if its modification time falls within the
// freshness window. A stale artifact means the compiler step silently
// reused a previous binary, so it is treated the same as missing:
// fatal, regardless of what the build step reported.
func (v *Verifier) Verify() (*models.Artifact, error) {
	path, info := v.locate()
	if info == nil {
		return nil, pipeline.NewError(pipeline.KindArtifactMissing,
			"no executable found in any of %v", v.cfg.Build.ArtifactPaths)
	}

	age := v.Now().Sub(info.ModTime())
	if age > v.cfg.Build.FreshnessWindow {
		return nil, pipeline.NewError(pipeline.KindStaleArtifact,
			"artifact %s is %s old, freshness window is %s",
			path, age.Round(time.Second), v.cfg.Build.FreshnessWindow)
	}

	// The build step is not trusted to have preserved the executable
	// bit; set it here.
	if err := os.Chmod(path, 0o755); err != nil {
		return nil, pipeline.WrapError(pipeline.KindArtifactMissing, err,
			"set executable permission on %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, pipeline.WrapError(pipeline.KindArtifactMissing, err, "stat %s", path)
	}

	artifact := &models.Artifact{
		Path:    path,
		Size:    info.Size(),
		Mode:    uint32(info.Mode().Perm()),
		ModTime: info.ModTime(),
	}
	v.logger.Info("artifact: verified",
		"path", artifact.Path, "size", artifact.Size, "age", age.Round(time.Second))
	return artifact, nil
}

// locate tries each candidate location in priority order and returns
// the first existing regular file.
func (v *Verifier) locate() (string, os.FileInfo) {
	for _, rel := range v.cfg.Build.ArtifactPaths {
		path := filepath.Join(v.cfg.Workspace.Dir, rel)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, info
		}
	}
	return "", nil
}
