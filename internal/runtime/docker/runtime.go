package docker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/rivetr/rivetr/internal/enum"
	"github.com/rivetr/rivetr/internal/runner"
)

const (
	labelManaged   = "rivetr.managed"
	defaultNetwork = "rivetr-network"
	stopTimeout    = 30 * time.Second
)

// Runtime implements runner.Runtime against a Docker daemon.
type Runtime struct {
	client *client.Client
	config Config
}

var _ runner.Runtime = (*Runtime)(nil)

func init() {
	runner.Register(enum.RuntimeDocker, func(ctx context.Context, cfg map[string]interface{}) (runner.Runtime, error) {
		config := Config{
			Host:       stringOpt(cfg, "host", client.DefaultDockerHost),
			APIVersion: stringOpt(cfg, "api_version", ""),
			Network:    stringOpt(cfg, "network", defaultNetwork),
			TLSVerify:  boolOpt(cfg, "tls_verify"),
			CertPEM:    stringOpt(cfg, "cert_pem", ""),
			KeyPEM:     stringOpt(cfg, "key_pem", ""),
			CAPEM:      stringOpt(cfg, "ca_pem", ""),
		}
		rt, err := NewRuntime(ctx, config)
		if err != nil {
			return nil, err
		}
		if err := rt.HealthCheck(ctx); err != nil {
			rt.Close()
			return nil, err
		}
		return rt, nil
	})
}

func stringOpt(cfg map[string]interface{}, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

func boolOpt(cfg map[string]interface{}, key string) bool {
	v, _ := cfg[key].(bool)
	return v
}

// NewRuntime builds a Docker client from config, negotiating the API
// version and optionally wiring mutual TLS.
func NewRuntime(ctx context.Context, config Config) (*Runtime, error) {
	opts := []client.Opt{
		client.WithHost(config.Host),
		client.WithAPIVersionNegotiation(),
	}
	if config.APIVersion != "" {
		opts = append(opts, client.WithVersion(config.APIVersion))
	}
	if config.TLSVerify {
		httpClient, err := httpClientFor(config)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithHTTPClient(httpClient))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	return &Runtime{client: cli, config: config}, nil
}

func (d *Runtime) Name() string { return "Docker" }

func (d *Runtime) HealthCheck(ctx context.Context) error {
	_, err := d.client.Ping(ctx)
	if err != nil {
		return runner.NewRunnerError("HealthCheck", "", err, true)
	}
	return nil
}

func (d *Runtime) Close() error {
	return d.client.Close()
}

// Build runs an image build from a context directory, tarring it the way
// the Docker CLI does before handing it to the daemon's build API.
func (d *Runtime) Build(ctx context.Context, spec runner.BuildSpec) (string, error) {
	dockerfile := spec.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	buildCtx, err := archive.TarWithOptions(spec.ContextPath, &archive.TarOptions{})
	if err != nil {
		return "", runner.NewRunnerError("Build", spec.Tag, fmt.Errorf("tar build context: %w", err), false)
	}
	defer buildCtx.Close()

	opts := buildkitBuildOptions(spec, dockerfile)

	resp, err := d.client.ImageBuild(ctx, buildCtx, opts)
	if err != nil {
		return "", runner.NewRunnerError("Build", spec.Tag, err, true)
	}
	defer resp.Body.Close()

	if err := drainBuildOutput(resp.Body); err != nil {
		return "", runner.NewRunnerError("Build", spec.Tag, err, false)
	}

	return spec.Tag, nil
}

func buildkitBuildOptions(spec runner.BuildSpec, dockerfile string) image.BuildOptions {
	buildArgs := make(map[string]*string, len(spec.BuildArgs))
	for k, v := range spec.BuildArgs {
		val := v
		buildArgs[k] = &val
	}

	opts := image.BuildOptions{
		Tags:       []string{spec.Tag},
		Dockerfile: dockerfile,
		BuildArgs:  buildArgs,
		Target:     spec.BuildTarget,
		Remove:     true,
	}
	if spec.MemoryBytes > 0 {
		opts.Memory = spec.MemoryBytes
	}
	if spec.CPULimit > 0 {
		opts.CPUPeriod = 100000
		opts.CPUQuota = int64(spec.CPULimit * 100000)
	}
	return opts
}

// drainBuildOutput reads the build's streamed JSON-lines response, failing
// on the first line that reports an error (the daemon reports build
// failures as 200 OK with an "errorDetail" line, not an HTTP error).
func drainBuildOutput(r io.Reader) error {
	dec := json.NewDecoder(r)
	for {
		var msg struct {
			Error       string `json:"error"`
			ErrorDetail struct {
				Message string `json:"message"`
			} `json:"errorDetail"`
		}
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if msg.Error != "" {
			return fmt.Errorf("%s", msg.Error)
		}
		if msg.ErrorDetail.Message != "" {
			return fmt.Errorf("%s", msg.ErrorDetail.Message)
		}
	}
}

// Run ensures the runtime's network exists and creates+starts a container.
// It does not pull the image: an image that is not present locally makes
// the create call fail.
func (d *Runtime) Run(ctx context.Context, spec runner.RunSpec) (string, error) {
	if err := d.ensureNetwork(ctx); err != nil {
		return "", runner.NewRunnerError("Run", spec.Name, err, true)
	}

	containerConfig := d.buildContainerConfig(spec)
	hostConfig := d.buildHostConfig(spec)
	networkConfig := d.buildNetworkConfig(spec)

	created, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, networkConfig, nil, spec.Name)
	if err != nil {
		return "", runner.NewRunnerError("Run", spec.Name, err, false)
	}

	if err := d.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", runner.NewRunnerError("Run", created.ID, err, true)
	}

	return created.ID, nil
}

func (d *Runtime) buildContainerConfig(spec runner.RunSpec) *container.Config {
	exposedPorts := nat.PortSet{}
	for containerPort := range spec.PortMappings {
		exposedPorts[nat.Port(fmt.Sprintf("%d/tcp", containerPort))] = struct{}{}
	}

	labels := map[string]string{labelManaged: "true"}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	return &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		ExposedPorts: exposedPorts,
		Labels:       labels,
	}
}

func (d *Runtime) buildHostConfig(spec runner.RunSpec) *container.HostConfig {
	restartPolicy := spec.RestartPolicy
	if restartPolicy == "" {
		restartPolicy = "no"
	}

	hostConfig := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyMode(restartPolicy)},
		ExtraHosts:    spec.ExtraHosts,
	}

	for _, v := range spec.Volumes {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:     mount.TypeVolume,
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	if spec.MemoryBytes > 0 {
		hostConfig.Memory = spec.MemoryBytes
	}
	if spec.CPULimit > 0 {
		hostConfig.CPUPeriod = 100000
		hostConfig.CPUQuota = int64(spec.CPULimit * 100000)
	}

	portBindings := nat.PortMap{}
	for containerPort, hostPort := range spec.PortMappings {
		hostPortStr := "0"
		if hostPort > 0 {
			hostPortStr = fmt.Sprintf("%d", hostPort)
		}
		portBindings[nat.Port(fmt.Sprintf("%d/tcp", containerPort))] = []nat.PortBinding{
			{HostIP: "0.0.0.0", HostPort: hostPortStr},
		}
	}
	hostConfig.PortBindings = portBindings

	return hostConfig
}

func (d *Runtime) buildNetworkConfig(spec runner.RunSpec) *network.NetworkingConfig {
	networkName := spec.Network
	if networkName == "" {
		networkName = d.config.Network
	}
	if networkName == "" {
		networkName = defaultNetwork
	}

	return &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			networkName: {Aliases: spec.NetworkAliases},
		},
	}
}

func (d *Runtime) ensureNetwork(ctx context.Context) error {
	networkName := d.config.Network
	if networkName == "" {
		networkName = defaultNetwork
	}

	networks, err := d.client.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return err
	}
	for _, n := range networks {
		if n.Name == networkName {
			return nil
		}
	}

	_, err = d.client.NetworkCreate(ctx, networkName, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{labelManaged: "true"},
	})
	return err
}

func (d *Runtime) Stop(ctx context.Context, containerID string) error {
	timeoutSecs := int(stopTimeout.Seconds())
	err := d.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeoutSecs})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return runner.NewRunnerError("Stop", containerID, err, true)
	}
	return nil
}

func (d *Runtime) Restart(ctx context.Context, containerID string) error {
	err := d.client.ContainerStart(ctx, containerID, container.StartOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return runner.NewRunnerError("Restart", containerID, runner.ErrNotFound, false)
		}
		return runner.NewRunnerError("Restart", containerID, err, true)
	}
	return nil
}

func (d *Runtime) Remove(ctx context.Context, containerID string) error {
	err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return runner.NewRunnerError("Remove", containerID, err, true)
	}
	return nil
}

func (d *Runtime) Inspect(ctx context.Context, containerID string) (*runner.ContainerInfo, error) {
	inspect, err := d.client.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, runner.ErrNotFound
		}
		return nil, runner.NewRunnerError("Inspect", containerID, err, true)
	}

	info := &runner.ContainerInfo{
		ID:   inspect.ID,
		Name: strings.TrimPrefix(inspect.Name, "/"),
	}
	if inspect.State != nil {
		info.Running = inspect.State.Running
		info.Status = mapDockerState(inspect.State)
	}
	if inspect.NetworkSettings != nil {
		for _, netInfo := range inspect.NetworkSettings.Networks {
			if netInfo.IPAddress != "" {
				info.IPAddress = netInfo.IPAddress
				break
			}
		}
		for _, bindings := range inspect.NetworkSettings.Ports {
			if len(bindings) == 0 {
				continue
			}
			if port, err := strconv.Atoi(bindings[0].HostPort); err == nil {
				info.Port = port
				break
			}
		}
	}
	return info, nil
}

// mapDockerState translates Docker's container.State into the short status
// string every Runtime implementation reports through ContainerInfo.
func mapDockerState(state *container.State) string {
	switch {
	case state.Running:
		return "running"
	case state.Restarting:
		return "restarting"
	case state.Paused:
		return "paused"
	case state.Dead, state.OOMKilled:
		return "dead"
	default:
		return "exited"
	}
}

func (d *Runtime) Stats(ctx context.Context, containerID string) (*runner.ContainerStats, error) {
	stats, err := d.client.ContainerStats(ctx, containerID, false)
	if err != nil {
		return nil, runner.NewRunnerError("Stats", containerID, err, true)
	}
	defer stats.Body.Close()

	var v container.StatsResponse
	if err := json.NewDecoder(stats.Body).Decode(&v); err != nil {
		return nil, runner.NewRunnerError("Stats", containerID, err, false)
	}

	return &runner.ContainerStats{
		CPUPercent:  cpuPercent(&v),
		MemoryUsage: int64(v.MemoryStats.Usage),
		MemoryLimit: int64(v.MemoryStats.Limit),
		NetworkRx:   networkBytes(&v, true),
		NetworkTx:   networkBytes(&v, false),
		BlockRead:   blkioBytes(&v, "Read"),
		BlockWrite:  blkioBytes(&v, "Write"),
	}, nil
}

func cpuPercent(v *container.StatsResponse) float64 {
	cpuDelta := float64(v.CPUStats.CPUUsage.TotalUsage) - float64(v.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(v.CPUStats.SystemUsage) - float64(v.PreCPUStats.SystemUsage)
	if systemDelta <= 0 || cpuDelta <= 0 {
		return 0
	}
	numCPUs := len(v.CPUStats.CPUUsage.PercpuUsage)
	if numCPUs == 0 {
		numCPUs = int(v.CPUStats.OnlineCPUs)
	}
	if numCPUs == 0 {
		numCPUs = 1
	}
	return (cpuDelta / systemDelta) * float64(numCPUs) * 100.0
}

func networkBytes(v *container.StatsResponse, rx bool) int64 {
	var total int64
	for _, n := range v.Networks {
		if rx {
			total += int64(n.RxBytes)
		} else {
			total += int64(n.TxBytes)
		}
	}
	return total
}

func blkioBytes(v *container.StatsResponse, op string) int64 {
	var total int64
	for _, e := range v.BlkioStats.IoServiceBytesRecursive {
		if strings.EqualFold(e.Op, op) {
			total += int64(e.Value)
		}
	}
	return total
}

func (d *Runtime) Logs(ctx context.Context, containerID string, opts runner.LogOptions) (*runner.LogReader, error) {
	options := container.LogsOptions{
		ShowStdout: opts.Stream == "" || opts.Stream == "stdout",
		ShowStderr: opts.Stream == "" || opts.Stream == "stderr",
		Follow:     opts.Follow,
		Timestamps: opts.Timestamps,
	}
	if opts.Tail > 0 {
		options.Tail = fmt.Sprintf("%d", opts.Tail)
	}
	if !opts.Since.IsZero() {
		options.Since = opts.Since.Format(time.RFC3339Nano)
	}
	if !opts.Until.IsZero() {
		options.Until = opts.Until.Format(time.RFC3339Nano)
	}

	rc, err := d.client.ContainerLogs(ctx, containerID, options)
	if err != nil {
		return nil, runner.NewRunnerError("Logs", containerID, err, true)
	}
	return &runner.LogReader{ReadCloser: rc}, nil
}

func (d *Runtime) Exec(ctx context.Context, containerID string, argv []string) (*runner.ExecResult, error) {
	created, err := d.client.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, runner.NewRunnerError("Exec", containerID, err, false)
	}

	attach, err := d.client.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, runner.NewRunnerError("Exec", containerID, err, false)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil && err != io.EOF {
		return nil, runner.NewRunnerError("Exec", containerID, err, false)
	}

	inspect, err := d.client.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, runner.NewRunnerError("Exec", containerID, err, false)
	}

	return &runner.ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

func (d *Runtime) ListContainers(ctx context.Context, namePrefix string) ([]runner.ContainerInfo, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("label", labelManaged+"=true")

	containers, err := d.client.ContainerList(ctx, container.ListOptions{All: true, Filters: filterArgs})
	if err != nil {
		return nil, runner.NewRunnerError("ListContainers", "", err, true)
	}

	var out []runner.ContainerInfo
	for _, c := range containers {
		name := strings.TrimPrefix(firstName(c.Names), "/")
		if namePrefix != "" && !strings.HasPrefix(name, namePrefix) {
			continue
		}
		out = append(out, runner.ContainerInfo{
			ID:      c.ID,
			Name:    name,
			Status:  c.State,
			Running: c.State == "running",
		})
	}
	return out, nil
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func (d *Runtime) Pull(ctx context.Context, imageRef string) error {
	var authStr string
	authConfig := registry.AuthConfig{}
	authJSON, err := json.Marshal(authConfig)
	if err == nil {
		authStr = base64.URLEncoding.EncodeToString(authJSON)
	}

	out, err := d.client.ImagePull(ctx, imageRef, image.PullOptions{RegistryAuth: authStr})
	if err != nil {
		return runner.NewRunnerError("Pull", imageRef, err, true)
	}
	defer out.Close()

	_, err = io.Copy(io.Discard, out)
	return err
}

func (d *Runtime) RemoveImage(ctx context.Context, tag string) error {
	_, err := d.client.ImageRemove(ctx, tag, image.RemoveOptions{Force: false})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		if strings.Contains(err.Error(), "image is being used") {
			return runner.ErrImageInUse
		}
		return runner.NewRunnerError("RemoveImage", tag, err, false)
	}
	return nil
}

func (d *Runtime) PruneImages(ctx context.Context) (int64, error) {
	report, err := d.client.ImagesPrune(ctx, filters.NewArgs(filters.Arg("dangling", "true")))
	if err != nil {
		return 0, runner.NewRunnerError("PruneImages", "", err, true)
	}
	return int64(report.SpaceReclaimed), nil
}
