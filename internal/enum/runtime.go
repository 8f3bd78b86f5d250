package enum

// RuntimeType selects which container engine backs the runtime abstraction.
type RuntimeType string

const (
	RuntimeAuto   RuntimeType = "auto"
	RuntimeDocker RuntimeType = "docker"
	RuntimePodman RuntimeType = "podman"
	// RuntimeNone is never user-selectable (see RuntimeType.Values); it is
	// the registry key for the no-op fallback auto-detection lands on when
	// neither Docker nor Podman is reachable.
	RuntimeNone RuntimeType = "none"
)

// Values returns the user-selectable runtime type values.
func (RuntimeType) Values() []string {
	return []string{string(RuntimeAuto), string(RuntimeDocker), string(RuntimePodman)}
}
