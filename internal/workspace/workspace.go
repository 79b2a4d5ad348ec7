// Package workspace brings the build directory to a buildable state:
// cleaning prior output, verifying the fixed configuration artifacts,
// and applying an optional vehicle-signal specification override.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lei/vehicle-ci/internal/config"
	"github.com/lei/vehicle-ci/internal/pipeline"
	"github.com/lei/vehicle-ci/pkg/logger"
)

// acceptedSchemes are the URL prefixes a remote specification may use
var acceptedSchemes = []string{"http://", "https://"}

// Manifest mirrors the fields of AppManifest.json the preparer touches.
// Unknown fields are preserved through the raw map so a rewrite never
// drops configuration the pipeline does not understand.
type Manifest struct {
	raw map[string]json.RawMessage
}

// VehicleModelSrc returns the manifest's specification source field
func (m *Manifest) VehicleModelSrc() string {
	var vm struct {
		Src string `json:"src"`
	}
	if rawVM, ok := m.raw["vehicleModel"]; ok {
		_ = json.Unmarshal(rawVM, &vm)
	}
	return vm.Src
}

// SetVehicleModelSrc rewrites the specification source field
func (m *Manifest) SetVehicleModelSrc(src string) error {
	vm := map[string]any{}
	if rawVM, ok := m.raw["vehicleModel"]; ok {
		if err := json.Unmarshal(rawVM, &vm); err != nil {
			return fmt.Errorf("parse vehicleModel: %w", err)
		}
	}
	vm["src"] = src
	encoded, err := json.Marshal(vm)
	if err != nil {
		return err
	}
	m.raw["vehicleModel"] = encoded
	return nil
}

// Preparer establishes a buildable workspace for the installed source
type Preparer struct {
	cfg    *config.Config
	logger *logger.Logger
}

// New creates a workspace preparer
func New(cfg *config.Config, log *logger.Logger) *Preparer {
	return &Preparer{cfg: cfg, logger: log}
}

// Prepare runs the full preparation sequence. Clean is skippable by
// the caller via the skipClean flag; fixture verification and override
// application always run.
func (p *Preparer) Prepare(skipClean bool) error {
	if !skipClean {
		if err := p.Clean(); err != nil {
			return err
		}
	}
	if err := p.VerifyFixtures(); err != nil {
		return err
	}
	return p.ApplySpecOverride()
}

// Clean removes prior build output and any previously produced
// executables so a stale binary can never masquerade as fresh output.
func (p *Preparer) Clean() error {
	outputs := []string{"build", "app/build", "build-linux-x86_64"}
	for _, rel := range outputs {
		dir := filepath.Join(p.cfg.Workspace.Dir, rel)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clean %s: %w", dir, err)
		}
	}
	for _, rel := range p.cfg.Build.ArtifactPaths {
		path := filepath.Join(p.cfg.Workspace.Dir, rel)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove artifact %s: %w", path, err)
		}
	}
	p.logger.Info("workspace: cleaned build output", "dir", p.cfg.Workspace.Dir)
	return nil
}

// VerifyFixtures checks that the manifest and dependency descriptor
// exist. Their absence is a deployment defect, not a user error, and
// aborts before any compiler is invoked.
func (p *Preparer) VerifyFixtures() error {
	for _, rel := range []string{p.cfg.Workspace.Manifest, p.cfg.Workspace.DepsFile} {
		path := filepath.Join(p.cfg.Workspace.Dir, rel)
		if _, err := os.Stat(path); err != nil {
			return pipeline.NewError(pipeline.KindWorkspace,
				"required configuration artifact missing: %s", path)
		}
	}
	p.logger.Debug("workspace: configuration artifacts present")
	return nil
}

// ApplySpecOverride points the manifest at a caller-supplied
// specification. A local file beats a remote URL beats the built-in
// default. An invalid URL is a hard validation error, never silently
// replaced with the default.
func (p *Preparer) ApplySpecOverride() error {
	vssFile := p.cfg.Build.VSSFile
	vssURL := p.cfg.Build.VSSURL

	switch {
	case vssFile != "":
		content, err := os.ReadFile(vssFile)
		if err != nil {
			return pipeline.WrapError(pipeline.KindInvalidSpecURL, err,
				"read local specification %s", vssFile)
		}
		dest := filepath.Join(p.cfg.Workspace.Dir, "app", "vss.json")
		if err := os.WriteFile(dest, content, 0o644); err != nil {
			return fmt.Errorf("copy specification into workspace: %w", err)
		}
		p.logger.Info("workspace: using local specification file", "path", vssFile)
		return p.rewriteManifest("./vss.json")

	case vssURL != "":
		if !validSpecURL(vssURL) {
			return pipeline.NewError(pipeline.KindInvalidSpecURL,
				"specification URL %q must start with one of %v", vssURL, acceptedSchemes)
		}
		p.logger.Info("workspace: using remote specification", "url", vssURL)
		return p.rewriteManifest(vssURL)

	default:
		p.logger.Debug("workspace: no specification override, manifest default kept")
		return nil
	}
}

// LoadManifest parses the workspace manifest
func (p *Preparer) LoadManifest() (*Manifest, error) {
	path := filepath.Join(p.cfg.Workspace.Dir, p.cfg.Workspace.Manifest)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pipeline.WrapError(pipeline.KindWorkspace, err, "read manifest")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, pipeline.WrapError(pipeline.KindWorkspace, err, "parse manifest")
	}
	return &Manifest{raw: raw}, nil
}

func (p *Preparer) rewriteManifest(src string) error {
	manifest, err := p.LoadManifest()
	if err != nil {
		return err
	}
	if err := manifest.SetVehicleModelSrc(src); err != nil {
		return fmt.Errorf("rewrite manifest: %w", err)
	}

	data, err := json.MarshalIndent(manifest.raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(p.cfg.Workspace.Dir, p.cfg.Workspace.Manifest)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	p.logger.Info("workspace: manifest specification source rewritten", "src", src)
	return nil
}

func validSpecURL(url string) bool {
	for _, scheme := range acceptedSchemes {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}
