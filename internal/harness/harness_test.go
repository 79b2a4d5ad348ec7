package harness

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lei/vehicle-ci/internal/config"
	"github.com/lei/vehicle-ci/internal/execx"
	"github.com/lei/vehicle-ci/internal/models"
	"github.com/lei/vehicle-ci/internal/pipeline"
	"github.com/lei/vehicle-ci/pkg/logger"
)

// fakeDockerRunner scripts docker CLI behavior and records every call
type fakeDockerRunner struct {
	calls   []string
	appLogs string
	failOn  string // substring of a call that should exit non-zero
}

func (f *fakeDockerRunner) Run(_ context.Context, spec execx.Spec) (*execx.Result, error) {
	call := spec.Name + " " + strings.Join(spec.Args, " ")
	f.calls = append(f.calls, call)

	if f.failOn != "" && strings.Contains(call, f.failOn) {
		return &execx.Result{ExitCode: 1, Output: "simulated failure"}, nil
	}
	if strings.Contains(call, "inspect") {
		return &execx.Result{ExitCode: 0, Output: "true\n"}, nil
	}
	if strings.Contains(call, "logs") {
		return &execx.Result{ExitCode: 0, Output: f.appLogs}, nil
	}
	return &execx.Result{ExitCode: 0, Output: ""}, nil
}

func (f *fakeDockerRunner) removals() []string {
	var removed []string
	for _, call := range f.calls {
		if strings.Contains(call, "rm -f") || strings.Contains(call, "network rm") {
			removed = append(removed, call)
		}
	}
	return removed
}

func harnessFixture(t *testing.T, fake *fakeDockerRunner) *Harness {
	t.Helper()
	cfg := config.Default()
	cfg.Workspace.Dir = t.TempDir()
	cfg.Harness.ReadyRetries = 3
	log := logger.NewWithWriter(os.Stderr, "error", "text")
	h := New(cfg, log, NewDocker(fake, log))
	h.Sleep = func(time.Duration) {}
	return h
}

func speedScenario() *models.TestScenario {
	return &models.TestScenario{
		Name: "speed-alert",
		Injections: []models.Injection{
			{Signal: "Vehicle.Speed", Value: "42", Settle: time.Second},
			{Signal: "Vehicle.Speed", Value: "130", Settle: time.Second},
		},
		Assertions: []string{
			"speed update received",
			"speed limit exceeded",
		},
	}
}

func TestRunScenario_AllAssertionsPass(t *testing.T) {
	fake := &fakeDockerRunner{appLogs: "INFO speed update received: 42\nWARN speed limit exceeded\n"}
	h := harnessFixture(t, fake)

	report, err := h.RunScenario(context.Background(), speedScenario())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Passed)
	assert.Equal(t, 2, report.Total)
}

func TestRunScenario_EvaluatesAllAssertions(t *testing.T) {
	// First assertion fails, second passes; both must be reported.
	fake := &fakeDockerRunner{appLogs: "WARN speed limit exceeded\n"}
	h := harnessFixture(t, fake)

	report, err := h.RunScenario(context.Background(), speedScenario())
	require.Error(t, err)
	assert.Equal(t, pipeline.KindScenarioAssertion, pipeline.KindOf(err))
	require.Len(t, report.Assertions, 2)
	assert.False(t, report.Assertions[0].Passed)
	assert.True(t, report.Assertions[1].Passed)
	assert.Equal(t, 1, report.Passed)
}

func TestRunScenario_TeardownOnAssertionFailure(t *testing.T) {
	fake := &fakeDockerRunner{appLogs: "nothing relevant\n"}
	h := harnessFixture(t, fake)

	_, err := h.RunScenario(context.Background(), speedScenario())
	require.Error(t, err)

	// Teardown must have force-removed all three containers and the
	// network after the failed run (beyond the pre-run cleanup).
	removals := fake.removals()
	assert.GreaterOrEqual(t, len(removals), 8, "pre-run cleanup plus post-run teardown")
	last := strings.Join(removals[len(removals)-4:], "\n")
	for _, want := range []string{"-app", "-databroker", "-broker", "network rm"} {
		assert.Contains(t, last, want)
	}
}

func TestRunScenario_TeardownOnProvisionFailure(t *testing.T) {
	fake := &fakeDockerRunner{failOn: "network create"}
	h := harnessFixture(t, fake)

	_, err := h.RunScenario(context.Background(), speedScenario())
	require.Error(t, err)

	var sawTeardown bool
	for _, call := range fake.calls[len(fake.calls)-5:] {
		if strings.Contains(call, "rm -f") {
			sawTeardown = true
		}
	}
	assert.True(t, sawTeardown, "teardown must run even when provisioning fails")
}

func TestRunScenario_InjectionsApplied(t *testing.T) {
	fake := &fakeDockerRunner{appLogs: "speed update received\nspeed limit exceeded\n"}
	h := harnessFixture(t, fake)

	_, err := h.RunScenario(context.Background(), speedScenario())
	require.NoError(t, err)

	var injections []string
	for _, call := range fake.calls {
		if strings.Contains(call, "databroker-cli set") {
			injections = append(injections, call)
		}
	}
	require.Len(t, injections, 2)
	assert.Contains(t, injections[0], "Vehicle.Speed 42")
	assert.Contains(t, injections[1], "Vehicle.Speed 130")
}

func TestRunScenario_BoundedReadinessWait(t *testing.T) {
	// Containers never report running: the scenario must fail after the
	// bounded retry count, not hang.
	fake := &fakeDockerRunner{failOn: "inspect"}
	h := harnessFixture(t, fake)

	done := make(chan struct{})
	var err error
	go func() {
		_, err = h.RunScenario(context.Background(), speedScenario())
		close(done)
	}()

	select {
	case <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not ready")
	case <-time.After(10 * time.Second):
		t.Fatal("RunScenario did not return; readiness wait is unbounded")
	}
}

func TestRunScenario_CancellationStillTearsDown(t *testing.T) {
	fake := &fakeDockerRunner{appLogs: "irrelevant"}
	h := harnessFixture(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.RunScenario(ctx, speedScenario())
	require.Error(t, err)
	assert.NotEmpty(t, fake.removals(), "cancellation must still attempt teardown")
}

func TestNamesFor_Sanitized(t *testing.T) {
	h := harnessFixture(t, &fakeDockerRunner{})
	n := h.namesFor("speed alert/v2")
	assert.NotContains(t, n.network, " ")
	assert.NotContains(t, n.network, "/")
}

func TestMatchAssertion(t *testing.T) {
	log := "INFO Speed Update Received: 42\n"
	assert.True(t, matchAssertion(log, `Speed Update`))
	assert.True(t, matchAssertion(log, `(?i)speed update received: \d+`))
	assert.False(t, matchAssertion(log, "fuel level"))
}
