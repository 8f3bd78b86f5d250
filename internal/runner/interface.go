// Package runner defines the container runtime abstraction every other
// component in the control plane depends on. Concrete implementations live
// under internal/runtime/{docker,podman,noop}; which one backs a process is
// decided once at startup by auto-detection or explicit configuration and
// threaded through context.Context (see internal/contextutil).
package runner

import "context"

// Runtime is the uniform capability set a local container engine exposes.
// The container operations map 1:1 to those named in the container runtime
// abstraction design: build, run, stop, remove, inspect, stats, logs,
// exec, list_containers, pull, remove_image, prune_images. Restart, Name,
// HealthCheck and Close are additional.
type Runtime interface {
	// Build builds an image from a context directory and returns the tag.
	Build(ctx context.Context, spec BuildSpec) (string, error)

	// Run creates and starts a container, returning its id.
	Run(ctx context.Context, spec RunSpec) (string, error)

	// Stop stops a running container. Stopping an already-stopped
	// container is a soft success.
	Stop(ctx context.Context, containerID string) error

	// Restart starts an existing, previously-created container back up
	// in place (container monitor's crash-recovery path — it does not
	// create a new container or re-read the original run spec).
	Restart(ctx context.Context, containerID string) error

	// Remove force-removes a container. Removing an absent container is
	// a soft success.
	Remove(ctx context.Context, containerID string) error

	// Inspect returns the current state of a container.
	Inspect(ctx context.Context, containerID string) (*ContainerInfo, error)

	// Stats returns a point-in-time resource usage sample. The container
	// must be running.
	Stats(ctx context.Context, containerID string) (*ContainerStats, error)

	// Logs returns a lazily-read log stream. In follow mode the stream
	// terminates when the container exits.
	Logs(ctx context.Context, containerID string, opts LogOptions) (*LogReader, error)

	// Exec runs a command inside a running container and waits for it to
	// complete, capturing output.
	Exec(ctx context.Context, containerID string, argv []string) (*ExecResult, error)

	// ListContainers returns every managed container whose name begins
	// with prefix.
	ListContainers(ctx context.Context, namePrefix string) ([]ContainerInfo, error)

	// Pull fetches an image without creating a container.
	Pull(ctx context.Context, imageRef string) error

	// RemoveImage removes an image tag. Removing an absent image is a
	// soft success; removing an in-use image is an error.
	RemoveImage(ctx context.Context, tag string) error

	// PruneImages removes dangling images and returns the bytes reclaimed.
	PruneImages(ctx context.Context) (int64, error)

	// Name returns a short diagnostic name ("Docker", "Podman", "None").
	Name() string

	// HealthCheck verifies the runtime is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases any held resources (client connections, etc).
	Close() error
}
