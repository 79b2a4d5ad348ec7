// Package vehicleci provides a reusable vehicle application pipeline
// that can be embedded into other Go applications.
package vehicleci

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lei/vehicle-ci/internal/api"
	"github.com/lei/vehicle-ci/internal/config"
	"github.com/lei/vehicle-ci/internal/service"
	"github.com/lei/vehicle-ci/pkg/logger"
)

// Pipeline represents a vehicle-ci instance that can be embedded in applications
type Pipeline struct {
	config  *config.Config
	service *service.Service
	router  http.Handler
	server  *http.Server
	logger  *logger.Logger
}

// Config holds the configuration for the Pipeline. Zero-valued fields
// keep their built-in defaults, so embedders only set what they need.
type Config struct {
	// Workspace configuration
	Workspace WorkspaceConfig

	// Input channel configuration
	Input InputConfig

	// Build configuration
	Build BuildConfig

	// Run supervision configuration
	Run RunConfig

	// External service endpoints
	Services ServicesConfig

	// Integration test harness configuration
	Harness HarnessConfig

	// Quality gate configuration
	Gate GateConfig

	// HTTP server configuration
	Server ServerConfig

	// Authentication configuration
	Auth AuthConfig

	// Logger configuration
	Logging LoggingConfig
}

// WorkspaceConfig locates the build workspace and its fixed artifacts
type WorkspaceConfig struct {
	Dir        string
	SourceFile string
	Manifest   string
	DepsFile   string
	ModelDir   string
	ConanCache string
	ReportPath string
	LogPath    string
}

// InputConfig lists the input channel paths
type InputConfig struct {
	MountFile string
	MountDir  string
	DirFile   string
	AltMount  string
}

// BuildConfig controls the build orchestrator
type BuildConfig struct {
	SkipDeps        bool
	SkipModelGen    bool
	ForceRebuild    bool
	VSSFile         string
	VSSURL          string
	FreshnessWindow time.Duration
}

// RunConfig controls the run supervisor
type RunConfig struct {
	Timeout      time.Duration
	ProbeTimeout time.Duration
}

// ServicesConfig names the optional external endpoints probed before each run
type ServicesConfig struct {
	Broker     string
	Databroker string
}

// HarnessConfig controls the integration test harness
type HarnessConfig struct {
	ScenariosFile string
	NetworkPrefix string
}

// GateConfig controls the quality gate evaluator
type GateConfig struct {
	GatesFile string
	MinScore  float64
	Strict    bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// APIKeys is a list of API keys for authentication
	APIKeys []APIKey
}

// APIKey represents an API key for authentication
type APIKey struct {
	Name string
	Key  string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error, quiet
	Format string // json or text
}

// toInternal converts the public configuration into the internal one,
// applying the built-in defaults for everything left unset.
func (c *Config) toInternal() *config.Config {
	cfg := config.Default()
	if c == nil {
		return cfg
	}

	override(&cfg.Workspace.Dir, c.Workspace.Dir)
	override(&cfg.Workspace.SourceFile, c.Workspace.SourceFile)
	override(&cfg.Workspace.Manifest, c.Workspace.Manifest)
	override(&cfg.Workspace.DepsFile, c.Workspace.DepsFile)
	override(&cfg.Workspace.ModelDir, c.Workspace.ModelDir)
	override(&cfg.Workspace.ConanCache, c.Workspace.ConanCache)
	override(&cfg.Workspace.ReportPath, c.Workspace.ReportPath)
	override(&cfg.Workspace.LogPath, c.Workspace.LogPath)

	override(&cfg.Input.MountFile, c.Input.MountFile)
	override(&cfg.Input.MountDir, c.Input.MountDir)
	override(&cfg.Input.DirFile, c.Input.DirFile)
	override(&cfg.Input.AltMount, c.Input.AltMount)

	cfg.Build.SkipDeps = c.Build.SkipDeps
	cfg.Build.SkipModelGen = c.Build.SkipModelGen
	cfg.Build.ForceRebuild = c.Build.ForceRebuild
	override(&cfg.Build.VSSFile, c.Build.VSSFile)
	override(&cfg.Build.VSSURL, c.Build.VSSURL)
	override(&cfg.Build.FreshnessWindow, c.Build.FreshnessWindow)

	override(&cfg.Run.Timeout, c.Run.Timeout)
	override(&cfg.Run.ProbeTimeout, c.Run.ProbeTimeout)

	override(&cfg.Services.Broker, c.Services.Broker)
	override(&cfg.Services.Databroker, c.Services.Databroker)

	override(&cfg.Harness.ScenariosFile, c.Harness.ScenariosFile)
	override(&cfg.Harness.NetworkPrefix, c.Harness.NetworkPrefix)

	override(&cfg.Gate.GatesFile, c.Gate.GatesFile)
	override(&cfg.Gate.MinScore, c.Gate.MinScore)
	cfg.Gate.Strict = c.Gate.Strict

	override(&cfg.Server.Port, c.Server.Port)
	override(&cfg.Server.ReadTimeout, c.Server.ReadTimeout)
	override(&cfg.Server.WriteTimeout, c.Server.WriteTimeout)

	// Convert APIKeys to internal config format
	keys := make([]config.APIKey, len(c.Auth.APIKeys))
	for i, key := range c.Auth.APIKeys {
		keys[i] = config.APIKey{
			Name: key.Name,
			Key:  key.Key,
		}
	}
	cfg.Server.APIKeys = keys

	override(&cfg.Logging.Level, c.Logging.Level)
	override(&cfg.Logging.Format, c.Logging.Format)

	return cfg
}

// override replaces dst with src unless src is the zero value
func override[T comparable](dst *T, src T) {
	var zero T
	if src != zero {
		*dst = src
	}
}

// New creates a new Pipeline instance with the provided configuration.
// Pass nil for the built-in defaults.
func New(cfg *Config) (*Pipeline, error) {
	return NewFromConfig(cfg.toInternal())
}

// NewFromFile creates a Pipeline from a YAML configuration file
func NewFromFile(path string) (*Pipeline, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewFromConfig(cfg)
}

// NewFromConfig creates a Pipeline from an already-loaded internal
// configuration. Used by the vehicle-ci command, which layers flag
// overrides onto the file configuration; embedding applications use
// New or NewFromFile.
func NewFromConfig(cfg *config.Config) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	appLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	svc := service.NewService(cfg, appLogger)

	handlers := api.NewHandlers(svc)
	authMiddleware := api.NewAuthMiddleware(cfg.Server.APIKeys)
	loggingMiddleware := api.NewLoggingMiddleware(appLogger)
	router := api.NewRouter(handlers, authMiddleware, loggingMiddleware)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Pipeline{
		config:  cfg,
		service: svc,
		router:  router,
		server:  srv,
		logger:  appLogger,
	}, nil
}

// Start starts the HTTP server
// This is a blocking call that will run until the context is canceled or an error occurs
func (p *Pipeline) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		p.logger.Info("starting http server", "port", p.config.Server.Port)
		serverErrors <- p.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		p.logger.Info("shutdown signal received")

		// Graceful shutdown with 30s timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := p.server.Shutdown(shutdownCtx); err != nil {
			p.server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		p.logger.Info("server stopped gracefully")
		return nil
	}
}

// Handler returns the http.Handler for the pipeline API
// Use this if you want to integrate the API into an existing HTTP server
func (p *Pipeline) Handler() http.Handler {
	return p.router
}

// Service returns the underlying service layer
// Use this for direct programmatic access to pipeline functionality
func (p *Pipeline) Service() *service.Service {
	return p.service
}
