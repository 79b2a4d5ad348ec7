// Package runner supervises the built executable under a hard
// wall-clock timeout and probes the optional external services it may
// connect to.
package runner

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/lei/vehicle-ci/internal/config"
	"github.com/lei/vehicle-ci/internal/execx"
	"github.com/lei/vehicle-ci/internal/models"
	"github.com/lei/vehicle-ci/internal/pipeline"
	"github.com/lei/vehicle-ci/pkg/logger"
)

// timeoutExitCode is what coreutils timeout(1) reports; some build
// containers wrap the app that way, so it is classified the same as
// our own deadline kill.
const timeoutExitCode = 124

// Supervisor executes the verified artifact
type Supervisor struct {
	cfg    *config.Config
	logger *logger.Logger
	runner execx.Runner

	// Dial is injectable for probe tests
	Dial func(network, addr string, timeout time.Duration) (net.Conn, error)
}

// New creates a run supervisor
func New(cfg *config.Config, log *logger.Logger, runner execx.Runner) *Supervisor {
	return &Supervisor{cfg: cfg, logger: log, runner: runner, Dial: net.DialTimeout}
}

// Probe checks each optional external dependency via TCP reachability.
// Results are computed immediately before each run and never cached:
// services may start or stop between invocations.
func (s *Supervisor) Probe() models.ServiceAvailability {
	endpoints := map[string]string{
		"mqtt-broker": s.cfg.Services.Broker,
		"databroker":  s.cfg.Services.Databroker,
	}

	availability := make(models.ServiceAvailability, len(endpoints))
	for name, addr := range endpoints {
		conn, err := s.Dial("tcp", addr, s.cfg.Run.ProbeTimeout)
		if err != nil {
			s.logger.Warn("runner: service unreachable, feature degrades to simulation",
				"service", name, "addr", addr)
			availability[name] = false
			continue
		}
		conn.Close()
		s.logger.Info("runner: service reachable", "service", name, "addr", addr)
		availability[name] = true
	}
	return availability
}

// Run launches the artifact with the configured timeout. A zero exit
// is a natural completion; hitting the timeout is a success, because
// the target is a long-lived demo service with no natural termination;
// any other exit is a crash. Unavailable services are exported to the
// child environment so it degrades instead of blocking on connects.
func (s *Supervisor) Run(ctx context.Context, artifact *models.Artifact, timeout time.Duration) (*models.RunOutcome, error) {
	if timeout <= 0 {
		timeout = s.cfg.Run.Timeout
	}

	services := s.Probe()
	env := serviceEnv(services)
	env = append(env,
		"SDV_MQTT_ADDRESS=tcp://"+s.cfg.Services.Broker,
		"SDV_VEHICLEDATABROKER_ADDRESS=grpc://"+s.cfg.Services.Databroker,
	)

	s.logger.Info("runner: launching artifact",
		"path", artifact.Path, "timeout", timeout)

	res, err := s.runner.Run(ctx, execx.Spec{
		Name:    artifact.Path,
		Dir:     s.cfg.Workspace.Dir,
		Env:     env,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("launch artifact: %w", err)
	}

	outcome := &models.RunOutcome{
		ExitCode: res.ExitCode,
		Log:      res.Output,
		Elapsed:  res.Elapsed,
		Services: services,
	}

	switch {
	case res.TimedOut || res.ExitCode == timeoutExitCode:
		outcome.Status = models.RunTimeoutReached
		s.logger.Info("runner: timeout reached, expected for a long-lived service",
			"elapsed", res.Elapsed.Round(time.Millisecond))
	case res.ExitCode == 0:
		outcome.Status = models.RunNaturalExit
		s.logger.Info("runner: natural exit", "elapsed", res.Elapsed.Round(time.Millisecond))
	default:
		outcome.Status = models.RunCrashed
		s.logger.Error("runner: artifact crashed", "exit_code", res.ExitCode)
		return outcome, &pipeline.Error{
			Kind:    pipeline.KindRunCrashed,
			Message: fmt.Sprintf("artifact exited %d", res.ExitCode),
			LogTail: pipeline.LogTail(res.Output, 50),
		}
	}

	return outcome, nil
}

// serviceEnv translates probe results into the environment signals the
// SDK understands, e.g. SDV_MQTT_BROKER_ENABLED=false.
func serviceEnv(services models.ServiceAvailability) []string {
	env := make([]string, 0, len(services))
	for name, available := range services {
		key := "SDV_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_ENABLED"
		env = append(env, fmt.Sprintf("%s=%t", key, available))
	}
	return env
}
