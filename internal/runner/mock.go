package runner

import "context"

// MockRuntime is a test double for Runtime. Each method falls back to a
// sane zero-value result when its corresponding Func field is nil, so
// tests only need to override the behaviors they care about.
type MockRuntime struct {
	BuildFunc          func(ctx context.Context, spec BuildSpec) (string, error)
	RunFunc            func(ctx context.Context, spec RunSpec) (string, error)
	StopFunc           func(ctx context.Context, containerID string) error
	RestartFunc        func(ctx context.Context, containerID string) error
	RemoveFunc         func(ctx context.Context, containerID string) error
	InspectFunc        func(ctx context.Context, containerID string) (*ContainerInfo, error)
	StatsFunc          func(ctx context.Context, containerID string) (*ContainerStats, error)
	LogsFunc           func(ctx context.Context, containerID string, opts LogOptions) (*LogReader, error)
	ExecFunc           func(ctx context.Context, containerID string, argv []string) (*ExecResult, error)
	ListContainersFunc func(ctx context.Context, namePrefix string) ([]ContainerInfo, error)
	PullFunc           func(ctx context.Context, imageRef string) error
	RemoveImageFunc    func(ctx context.Context, tag string) error
	PruneImagesFunc    func(ctx context.Context) (int64, error)
	NameFunc           func() string
	HealthCheckFunc    func(ctx context.Context) error
	CloseFunc          func() error
}

var _ Runtime = (*MockRuntime)(nil)

func (m *MockRuntime) Build(ctx context.Context, spec BuildSpec) (string, error) {
	if m.BuildFunc != nil {
		return m.BuildFunc(ctx, spec)
	}
	return spec.Tag, nil
}

func (m *MockRuntime) Run(ctx context.Context, spec RunSpec) (string, error) {
	if m.RunFunc != nil {
		return m.RunFunc(ctx, spec)
	}
	return "mock-container-id", nil
}

func (m *MockRuntime) Stop(ctx context.Context, containerID string) error {
	if m.StopFunc != nil {
		return m.StopFunc(ctx, containerID)
	}
	return nil
}

func (m *MockRuntime) Restart(ctx context.Context, containerID string) error {
	if m.RestartFunc != nil {
		return m.RestartFunc(ctx, containerID)
	}
	return nil
}

func (m *MockRuntime) Remove(ctx context.Context, containerID string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, containerID)
	}
	return nil
}

func (m *MockRuntime) Inspect(ctx context.Context, containerID string) (*ContainerInfo, error) {
	if m.InspectFunc != nil {
		return m.InspectFunc(ctx, containerID)
	}
	return &ContainerInfo{ID: containerID, Running: true, Status: "running"}, nil
}

func (m *MockRuntime) Stats(ctx context.Context, containerID string) (*ContainerStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx, containerID)
	}
	return &ContainerStats{}, nil
}

func (m *MockRuntime) Logs(ctx context.Context, containerID string, opts LogOptions) (*LogReader, error) {
	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, containerID, opts)
	}
	return nil, ErrNotFound
}

func (m *MockRuntime) Exec(ctx context.Context, containerID string, argv []string) (*ExecResult, error) {
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, containerID, argv)
	}
	return &ExecResult{ExitCode: 0}, nil
}

func (m *MockRuntime) ListContainers(ctx context.Context, namePrefix string) ([]ContainerInfo, error) {
	if m.ListContainersFunc != nil {
		return m.ListContainersFunc(ctx, namePrefix)
	}
	return nil, nil
}

func (m *MockRuntime) Pull(ctx context.Context, imageRef string) error {
	if m.PullFunc != nil {
		return m.PullFunc(ctx, imageRef)
	}
	return nil
}

func (m *MockRuntime) RemoveImage(ctx context.Context, tag string) error {
	if m.RemoveImageFunc != nil {
		return m.RemoveImageFunc(ctx, tag)
	}
	return nil
}

func (m *MockRuntime) PruneImages(ctx context.Context) (int64, error) {
	if m.PruneImagesFunc != nil {
		return m.PruneImagesFunc(ctx)
	}
	return 0, nil
}

func (m *MockRuntime) Name() string {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "Mock"
}

func (m *MockRuntime) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc != nil {
		return m.HealthCheckFunc(ctx)
	}
	return nil
}

func (m *MockRuntime) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
