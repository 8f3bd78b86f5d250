// Package noop implements runner.Runtime as the "no container runtime
// available" fallback the auto-detect procedure lands on when neither
// Docker nor Podman responds (original_source/src/runtime/mod.rs's
// NoopRuntime). Every mutating method fails with runner.ErrUnavailable so
// the control plane still starts and serves read-only endpoints.
package noop

import (
	"context"

	"github.com/rivetr/rivetr/internal/enum"
	"github.com/rivetr/rivetr/internal/runner"
)

// Runtime is the inert Runtime implementation used when no container
// engine could be reached at startup.
type Runtime struct{}

var _ runner.Runtime = (*Runtime)(nil)

func init() {
	runner.Register(enum.RuntimeNone, func(ctx context.Context, cfg map[string]interface{}) (runner.Runtime, error) {
		return New(), nil
	})
}

// New constructs the no-op runtime. It never fails.
func New() *Runtime { return &Runtime{} }

func (r *Runtime) Build(ctx context.Context, spec runner.BuildSpec) (string, error) {
	return "", runner.NewRunnerError("build", "", runner.ErrUnavailable, false)
}

func (r *Runtime) Run(ctx context.Context, spec runner.RunSpec) (string, error) {
	return "", runner.NewRunnerError("run", "", runner.ErrUnavailable, false)
}

func (r *Runtime) Stop(ctx context.Context, containerID string) error {
	return runner.NewRunnerError("stop", containerID, runner.ErrUnavailable, false)
}

func (r *Runtime) Restart(ctx context.Context, containerID string) error {
	return runner.NewRunnerError("restart", containerID, runner.ErrUnavailable, false)
}

func (r *Runtime) Remove(ctx context.Context, containerID string) error {
	return runner.NewRunnerError("remove", containerID, runner.ErrUnavailable, false)
}

func (r *Runtime) Inspect(ctx context.Context, containerID string) (*runner.ContainerInfo, error) {
	return nil, runner.NewRunnerError("inspect", containerID, runner.ErrUnavailable, false)
}

func (r *Runtime) Stats(ctx context.Context, containerID string) (*runner.ContainerStats, error) {
	return nil, runner.NewRunnerError("stats", containerID, runner.ErrUnavailable, false)
}

func (r *Runtime) Logs(ctx context.Context, containerID string, opts runner.LogOptions) (*runner.LogReader, error) {
	return nil, runner.NewRunnerError("logs", containerID, runner.ErrUnavailable, false)
}

func (r *Runtime) Exec(ctx context.Context, containerID string, argv []string) (*runner.ExecResult, error) {
	return nil, runner.NewRunnerError("exec", containerID, runner.ErrUnavailable, false)
}

func (r *Runtime) ListContainers(ctx context.Context, namePrefix string) ([]runner.ContainerInfo, error) {
	return nil, nil
}

func (r *Runtime) Pull(ctx context.Context, imageRef string) error {
	return runner.NewRunnerError("pull", "", runner.ErrUnavailable, false)
}

func (r *Runtime) RemoveImage(ctx context.Context, tag string) error {
	return runner.NewRunnerError("remove_image", "", runner.ErrUnavailable, false)
}

func (r *Runtime) PruneImages(ctx context.Context) (int64, error) {
	return 0, runner.NewRunnerError("prune_images", "", runner.ErrUnavailable, false)
}

func (r *Runtime) Name() string { return "None" }

func (r *Runtime) HealthCheck(ctx context.Context) error {
	return runner.ErrUnavailable
}

func (r *Runtime) Close() error { return nil }
