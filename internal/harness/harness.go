// Package harness executes integration test scenarios against an
// ephemeral environment: an isolated network, a message broker, a
// vehicle data broker, and the application under test. Every resource
// provisioned for a scenario is torn down on every exit path.
package harness

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/lei/vehicle-ci/internal/config"
	"github.com/lei/vehicle-ci/internal/models"
	"github.com/lei/vehicle-ci/internal/pipeline"
	"github.com/lei/vehicle-ci/pkg/logger"
)

// Harness provisions and drives one scenario at a time
type Harness struct {
	cfg    *config.Config
	logger *logger.Logger
	docker *Docker

	// Sleep is injectable so tests do not wait out settle delays
	Sleep func(time.Duration)
}

// New creates a harness
func New(cfg *config.Config, log *logger.Logger, docker *Docker) *Harness {
	return &Harness{cfg: cfg, logger: log, docker: docker, Sleep: time.Sleep}
}

// names holds the per-scenario resource names. Deriving them from the
// scenario name lets a new run remove a previous run's leftovers.
type names struct {
	network    string
	broker     string
	databroker string
	app        string
}

func (h *Harness) namesFor(scenario string) names {
	base := h.cfg.Harness.NetworkPrefix + "-" + sanitize(scenario)
	return names{
		network:    base + "-net",
		broker:     base + "-broker",
		databroker: base + "-databroker",
		app:        base + "-app",
	}
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

func sanitize(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "-")
}

// RunScenario executes the scenario end to end. Teardown runs
// unconditionally: on success, on any step failure, and on context
// cancellation. Leaking test infrastructure is a correctness bug.
func (h *Harness) RunScenario(ctx context.Context, scenario *models.TestScenario) (report *models.ScenarioReport, err error) {
	start := time.Now()
	n := h.namesFor(scenario.Name)
	report = &models.ScenarioReport{Scenario: scenario.Name, Total: len(scenario.Assertions)}

	// Tolerate a previous run's unclean exit before provisioning.
	h.cleanup(n)

	defer func() {
		if teardownErr := h.teardown(n); teardownErr != nil {
			h.logger.Error("harness: teardown incomplete", "error", teardownErr)
			err = multierr.Append(err, teardownErr)
		}
		report.Elapsed = time.Since(start)
	}()

	if err := h.provision(ctx, n); err != nil {
		return report, err
	}

	if err := h.inject(ctx, n, scenario.Injections); err != nil {
		return report, err
	}

	h.logger.Info("harness: settle wait before log inspection")
	h.Sleep(h.cfg.Harness.SettleDefault)

	appLog, err := h.docker.Logs(ctx, n.app)
	if err != nil {
		return report, fmt.Errorf("collect app log: %w", err)
	}

	// Every assertion is evaluated; one run surfaces every gap.
	for _, pattern := range scenario.Assertions {
		passed := matchAssertion(appLog, pattern)
		report.Assertions = append(report.Assertions, models.AssertionResult{
			Pattern: pattern,
			Passed:  passed,
		})
		if passed {
			report.Passed++
		} else {
			h.logger.Warn("harness: assertion failed", "pattern", pattern)
		}
	}
	h.logger.Info("harness: assertions evaluated",
		"scenario", scenario.Name, "passed", report.Passed, "total", report.Total)

	if report.Passed != report.Total {
		return report, pipeline.NewError(pipeline.KindScenarioAssertion,
			"%d of %d assertions passed", report.Passed, report.Total)
	}
	return report, nil
}

// provision walks the environment up: network, broker, databroker,
// application image, application container.
func (h *Harness) provision(ctx context.Context, n names) error {
	h.logger.Info("harness: creating isolated network", "network", n.network)
	if err := h.docker.NetworkCreate(ctx, n.network); err != nil {
		return fmt.Errorf("create network: %w", err)
	}

	h.logger.Info("harness: starting broker", "container", n.broker)
	if err := h.docker.StartDetached(ctx, n.broker, n.network, h.cfg.Harness.BrokerImage); err != nil {
		return fmt.Errorf("start broker: %w", err)
	}
	if err := h.waitReady(ctx, n.broker); err != nil {
		return err
	}

	h.logger.Info("harness: starting databroker", "container", n.databroker)
	if err := h.docker.StartDetached(ctx, n.databroker, n.network, h.cfg.Harness.DatabrokerImage); err != nil {
		return fmt.Errorf("start databroker: %w", err)
	}
	if err := h.waitReady(ctx, n.databroker); err != nil {
		return err
	}

	h.logger.Info("harness: building application image", "tag", h.cfg.Harness.AppImage)
	if err := h.docker.BuildImage(ctx, h.cfg.Harness.AppImage, h.cfg.Workspace.Dir); err != nil {
		return fmt.Errorf("build app image: %w", err)
	}

	h.logger.Info("harness: launching application", "container", n.app)
	if err := h.docker.StartDetached(ctx, n.app, n.network, h.cfg.Harness.AppImage,
		"-e", "SDV_MQTT_ADDRESS=tcp://"+n.broker+":1883",
		"-e", "SDV_VEHICLEDATABROKER_ADDRESS=grpc://"+n.databroker+":55555",
	); err != nil {
		return fmt.Errorf("start app: %w", err)
	}
	return h.waitReady(ctx, n.app)
}

// waitReady polls the container state with a bounded retry count so a
// service that never comes up fails the scenario deterministically
// instead of hanging the pipeline.
func (h *Harness) waitReady(ctx context.Context, container string) error {
	for attempt := 0; attempt < h.cfg.Harness.ReadyRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if h.docker.Running(ctx, container) {
			h.logger.Debug("harness: container ready",
				"container", container, "attempts", attempt+1)
			return nil
		}
		h.Sleep(h.cfg.Harness.ReadyInterval)
	}
	return fmt.Errorf("container %s not ready after %d attempts", container, h.cfg.Harness.ReadyRetries)
}

// inject applies each scripted signal write through the databroker,
// with a settle delay after each so the application can react before
// the next value arrives.
func (h *Harness) inject(ctx context.Context, n names, injections []models.Injection) error {
	for _, in := range injections {
		h.logger.Info("harness: injecting signal", "signal", in.Signal, "value", in.Value)
		if _, err := h.docker.Exec(ctx, n.databroker,
			"databroker-cli", "set", in.Signal, in.Value); err != nil {
			return fmt.Errorf("inject %s=%s: %w", in.Signal, in.Value, err)
		}

		settle := in.Settle
		if settle <= 0 {
			settle = h.cfg.Harness.SettleDefault
		}
		h.Sleep(settle)
	}
	return nil
}

// teardown stops and removes everything the scenario provisioned. It
// keeps going past individual failures and reports them together.
func (h *Harness) teardown(n names) error {
	// A fresh context: teardown must run even when the scenario's
	// context is already canceled.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var err error
	for _, container := range []string{n.app, n.databroker, n.broker} {
		err = multierr.Append(err, h.docker.RemoveForce(ctx, container))
	}
	err = multierr.Append(err, h.docker.NetworkRemove(ctx, n.network))
	if err == nil {
		h.logger.Info("harness: environment torn down", "network", n.network)
	}
	return err
}

// cleanup is best-effort removal of a previous run's leftovers
func (h *Harness) cleanup(n names) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	for _, container := range []string{n.app, n.databroker, n.broker} {
		_ = h.docker.RemoveForce(ctx, container)
	}
	_ = h.docker.NetworkRemove(ctx, n.network)
}

// matchAssertion treats the pattern as a regular expression when it
// compiles, falling back to a case-insensitive substring match.
func matchAssertion(log, pattern string) bool {
	if re, err := regexp.Compile(pattern); err == nil {
		return re.MatchString(log)
	}
	return strings.Contains(strings.ToLower(log), strings.ToLower(pattern))
}
