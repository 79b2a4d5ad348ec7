package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the immutable pipeline configuration, constructed once at
// startup and passed through every stage. No stage reads ambient
// process environment directly.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	Input     InputConfig     `yaml:"input"`
	Build     BuildConfig     `yaml:"build"`
	Run       RunConfig       `yaml:"run"`
	Services  ServicesConfig  `yaml:"services"`
	Harness   HarnessConfig   `yaml:"harness"`
	Gate      GateConfig      `yaml:"gate"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// WorkspaceConfig locates the build workspace and its fixed artifacts
type WorkspaceConfig struct {
	Dir        string `yaml:"dir"`
	SourceFile string `yaml:"source_file"` // relative to Dir
	Manifest   string `yaml:"manifest"`    // relative to Dir
	DepsFile   string `yaml:"deps_file"`   // relative to Dir
	ModelDir   string `yaml:"model_dir"`   // generated vehicle model
	ConanCache string `yaml:"conan_cache"`
	ReportPath string `yaml:"report_path"`
	LogPath    string `yaml:"log_path"`
}

// InputConfig lists the input channels in priority order
type InputConfig struct {
	MountFile string `yaml:"mount_file"` // fixed single-file mount
	MountDir  string `yaml:"mount_dir"`  // directory mount, fixed name inside
	DirFile   string `yaml:"dir_file"`   // file name looked up inside MountDir
	AltMount  string `yaml:"alt_mount"`  // second single-file mount
}

// BuildConfig controls the build orchestrator and artifact verifier
type BuildConfig struct {
	SkipDeps        bool          `yaml:"skip_deps"`
	SkipModelGen    bool          `yaml:"skip_model_gen"`
	ForceRebuild    bool          `yaml:"force_rebuild"`
	VSSFile         string        `yaml:"vss_file"`
	VSSURL          string        `yaml:"vss_url"`
	InstallScript   string        `yaml:"install_script"`
	BuildScript     string        `yaml:"build_script"`
	GenScript       string        `yaml:"gen_script"`
	ArtifactPaths   []string      `yaml:"artifact_paths"` // ordered candidates, relative to Dir
	FreshnessWindow time.Duration `yaml:"freshness_window"`
}

// RunConfig controls the run supervisor
type RunConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// ServicesConfig names the optional external endpoints probed before
// each run
type ServicesConfig struct {
	Broker     string `yaml:"broker"`     // MQTT broker host:port
	Databroker string `yaml:"databroker"` // vehicle data broker host:port
}

// HarnessConfig controls the integration test harness
type HarnessConfig struct {
	ScenariosFile   string        `yaml:"scenarios_file"`
	NetworkPrefix   string        `yaml:"network_prefix"`
	BrokerImage     string        `yaml:"broker_image"`
	DatabrokerImage string        `yaml:"databroker_image"`
	AppImage        string        `yaml:"app_image"`
	ReadyRetries    int           `yaml:"ready_retries"`
	ReadyInterval   time.Duration `yaml:"ready_interval"`
	SettleDefault   time.Duration `yaml:"settle_default"`
}

// GateConfig controls the quality gate evaluator
type GateConfig struct {
	GatesFile string  `yaml:"gates_file"`
	MinScore  float64 `yaml:"min_score"`
	Strict    bool    `yaml:"strict"`
}

// ServerConfig contains HTTP server settings for the serve subcommand
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	APIKeys      []APIKey      `yaml:"api_keys"`
}

// APIKey represents an API key for serve-mode authentication
type APIKey struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error, quiet
	Format string `yaml:"format"` // json or text
}

// Default returns the built-in configuration
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file, applying defaults for
// anything left unset. Environment variables in the file are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Workspace.Dir == "" {
		c.Workspace.Dir = "/workspace"
	}
	if c.Workspace.SourceFile == "" {
		c.Workspace.SourceFile = "app/src/main.cpp"
	}
	if c.Workspace.Manifest == "" {
		c.Workspace.Manifest = "app/AppManifest.json"
	}
	if c.Workspace.DepsFile == "" {
		c.Workspace.DepsFile = "app/conanfile.txt"
	}
	if c.Workspace.ModelDir == "" {
		c.Workspace.ModelDir = "app/vehicle_model"
	}
	if c.Workspace.ConanCache == "" {
		c.Workspace.ConanCache = os.ExpandEnv("$HOME/.conan2")
	}
	if c.Workspace.ReportPath == "" {
		c.Workspace.ReportPath = "/tmp/vehicle-ci/report.json"
	}
	if c.Workspace.LogPath == "" {
		c.Workspace.LogPath = "/tmp/vehicle-ci/pipeline.log"
	}
	if c.Input.MountFile == "" {
		c.Input.MountFile = "/input/app.cpp"
	}
	if c.Input.MountDir == "" {
		c.Input.MountDir = "/input"
	}
	if c.Input.DirFile == "" {
		c.Input.DirFile = "app.cpp"
	}
	if c.Input.AltMount == "" {
		c.Input.AltMount = "/app.cpp"
	}
	if c.Build.InstallScript == "" {
		c.Build.InstallScript = "./install_dependencies.sh"
	}
	if c.Build.BuildScript == "" {
		c.Build.BuildScript = "./build.sh"
	}
	if c.Build.GenScript == "" {
		c.Build.GenScript = "./gen_vehicle_model.sh"
	}
	if len(c.Build.ArtifactPaths) == 0 {
		// The build tool's output layout has moved across releases;
		// candidates are tried in order, first existing wins.
		c.Build.ArtifactPaths = []string{
			"build/bin/app",
			"app/build/bin/app",
			"build/bin/vehicleapp",
			"build-linux-x86_64/bin/app",
		}
	}
	if c.Build.FreshnessWindow == 0 {
		c.Build.FreshnessWindow = 5 * time.Minute
	}
	if c.Run.Timeout == 0 {
		c.Run.Timeout = 60 * time.Second
	}
	if c.Run.ProbeTimeout == 0 {
		c.Run.ProbeTimeout = 2 * time.Second
	}
	if c.Services.Broker == "" {
		c.Services.Broker = "localhost:1883"
	}
	if c.Services.Databroker == "" {
		c.Services.Databroker = "localhost:55555"
	}
	if c.Harness.ScenariosFile == "" {
		c.Harness.ScenariosFile = "configs/scenarios.yaml"
	}
	if c.Harness.NetworkPrefix == "" {
		c.Harness.NetworkPrefix = "vehicle-ci-test"
	}
	if c.Harness.BrokerImage == "" {
		c.Harness.BrokerImage = "eclipse-mosquitto:2"
	}
	if c.Harness.DatabrokerImage == "" {
		c.Harness.DatabrokerImage = "ghcr.io/eclipse-kuksa/kuksa-databroker:latest"
	}
	if c.Harness.AppImage == "" {
		c.Harness.AppImage = "vehicle-ci/app:test"
	}
	if c.Harness.ReadyRetries == 0 {
		c.Harness.ReadyRetries = 30
	}
	if c.Harness.ReadyInterval == 0 {
		c.Harness.ReadyInterval = time.Second
	}
	if c.Harness.SettleDefault == 0 {
		c.Harness.SettleDefault = 2 * time.Second
	}
	if c.Gate.GatesFile == "" {
		c.Gate.GatesFile = "configs/gates.yaml"
	}
	if c.Gate.MinScore == 0 {
		c.Gate.MinScore = 85
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}
