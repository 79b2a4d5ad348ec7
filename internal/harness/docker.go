package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/lei/vehicle-ci/internal/execx"
	"github.com/lei/vehicle-ci/pkg/logger"
)

// Docker wraps the container runtime CLI. The runtime is an external
// collaborator invoked as opaque commands with known exit-code
// contracts; nothing here inspects its internals.
type Docker struct {
	runner execx.Runner
	logger *logger.Logger
}

// NewDocker creates a docker CLI wrapper
func NewDocker(runner execx.Runner, log *logger.Logger) *Docker {
	return &Docker{runner: runner, logger: log}
}

func (d *Docker) run(ctx context.Context, args ...string) (*execx.Result, error) {
	d.logger.Debug("docker: invoking", "args", strings.Join(args, " "))
	res, err := d.runner.Run(ctx, execx.Spec{Name: "docker", Args: args})
	if err != nil {
		return nil, fmt.Errorf("docker %s: %w", args[0], err)
	}
	if res.ExitCode != 0 {
		return res, fmt.Errorf("docker %s exited %d: %s",
			args[0], res.ExitCode, strings.TrimSpace(res.Output))
	}
	return res, nil
}

// NetworkCreate creates an isolated bridge network
func (d *Docker) NetworkCreate(ctx context.Context, name string) error {
	_, err := d.run(ctx, "network", "create", name)
	return err
}

// NetworkRemove removes a network; missing networks are not an error
func (d *Docker) NetworkRemove(ctx context.Context, name string) error {
	res, err := d.run(ctx, "network", "rm", name)
	if err != nil && res != nil && strings.Contains(res.Output, "not found") {
		return nil
	}
	return err
}

// StartDetached runs a container detached on the given network. Extra
// args are docker run options and go before the image.
func (d *Docker) StartDetached(ctx context.Context, name, network, image string, args ...string) error {
	cmd := []string{"run", "-d", "--name", name, "--network", network}
	cmd = append(cmd, args...)
	cmd = append(cmd, image)
	_, err := d.run(ctx, cmd...)
	return err
}

// Running reports whether the named container is currently running
func (d *Docker) Running(ctx context.Context, name string) bool {
	res, err := d.runner.Run(ctx, execx.Spec{
		Name: "docker",
		Args: []string{"inspect", "-f", "{{.State.Running}}", name},
	})
	if err != nil || res.ExitCode != 0 {
		return false
	}
	return strings.TrimSpace(res.Output) == "true"
}

// Exec runs a command inside a running container
func (d *Docker) Exec(ctx context.Context, name string, cmd ...string) (*execx.Result, error) {
	args := append([]string{"exec", name}, cmd...)
	return d.run(ctx, args...)
}

// Logs returns the container's captured log
func (d *Docker) Logs(ctx context.Context, name string) (string, error) {
	res, err := d.run(ctx, "logs", name)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// RemoveForce stops and removes a container; missing containers are
// not an error, so teardown can run against a half-provisioned
// environment.
func (d *Docker) RemoveForce(ctx context.Context, name string) error {
	res, err := d.runner.Run(ctx, execx.Spec{
		Name: "docker",
		Args: []string{"rm", "-f", name},
	})
	if err != nil {
		return fmt.Errorf("docker rm -f %s: %w", name, err)
	}
	if res.ExitCode != 0 && !strings.Contains(res.Output, "No such container") {
		return fmt.Errorf("docker rm -f %s exited %d: %s",
			name, res.ExitCode, strings.TrimSpace(res.Output))
	}
	return nil
}

// BuildImage builds the application image from the workspace
func (d *Docker) BuildImage(ctx context.Context, tag, dir string) error {
	_, err := d.run(ctx, "build", "-t", tag, dir)
	return err
}
