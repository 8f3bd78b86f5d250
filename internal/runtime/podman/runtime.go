// Package podman implements runner.Runtime by shelling out to the podman
// CLI, generalizing original_source/src/runtime/podman.rs's
// `Command::new("podman")` wrapper (there is no maintained Podman Go SDK in
// the retrieval pack the way there is a Docker SDK) into the full
// build/run/stop/remove/inspect/stats/logs/exec operation set.
package podman

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rivetr/rivetr/internal/enum"
	"github.com/rivetr/rivetr/internal/runner"
)

const labelManaged = "rivetr.managed=true"

// Runtime implements runner.Runtime against the `podman` binary on PATH.
type Runtime struct {
	bin string
}

var _ runner.Runtime = (*Runtime)(nil)

func init() {
	runner.Register(enum.RuntimePodman, func(ctx context.Context, cfg map[string]interface{}) (runner.Runtime, error) {
		rt := New("")
		if err := rt.HealthCheck(ctx); err != nil {
			return nil, err
		}
		return rt, nil
	})
}

// New constructs a podman-backed runtime. bin defaults to "podman" on PATH
// when empty.
func New(bin string) *Runtime {
	if bin == "" {
		bin = "podman"
	}
	return &Runtime{bin: bin}
}

func (r *Runtime) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("podman %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (r *Runtime) Name() string { return "Podman" }

func (r *Runtime) HealthCheck(ctx context.Context) error {
	detectCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := r.run(detectCtx, "--version"); err != nil {
		return runner.NewRunnerError("HealthCheck", "", err, true)
	}
	return nil
}

func (r *Runtime) Close() error { return nil }

func (r *Runtime) Build(ctx context.Context, spec runner.BuildSpec) (string, error) {
	dockerfile := strings.TrimPrefix(spec.Dockerfile, "./")
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	args := []string{"build", "-t", spec.Tag, "-f", dockerfile}
	for k, v := range spec.BuildArgs {
		args = append(args, "--build-arg", fmt.Sprintf("%s=%s", k, v))
	}
	if spec.BuildTarget != "" {
		args = append(args, "--target", spec.BuildTarget)
	}
	if spec.MemoryBytes > 0 {
		args = append(args, "--memory", strconv.FormatInt(spec.MemoryBytes, 10))
	}
	if spec.CPULimit > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(spec.CPULimit, 'f', -1, 64))
	}
	args = append(args, spec.ContextPath)

	if _, err := r.run(ctx, args...); err != nil {
		return "", runner.NewRunnerError("Build", spec.Tag, err, false)
	}
	return spec.Tag, nil
}

func (r *Runtime) Run(ctx context.Context, spec runner.RunSpec) (string, error) {
	args := []string{"run", "-d", "--name", spec.Name, "--label", labelManaged}
	for _, kv := range spec.Env {
		args = append(args, "-e", kv)
	}
	for containerPort, hostPort := range spec.PortMappings {
		if hostPort > 0 {
			args = append(args, "-p", fmt.Sprintf("%d:%d", hostPort, containerPort))
		} else {
			args = append(args, "-p", fmt.Sprintf(":%d", containerPort))
		}
	}
	for k, v := range spec.Labels {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, v))
	}
	for _, v := range spec.Volumes {
		ro := ""
		if v.ReadOnly {
			ro = ":ro"
		}
		args = append(args, "-v", fmt.Sprintf("%s:%s%s", v.Source, v.Target, ro))
	}
	for _, h := range spec.ExtraHosts {
		args = append(args, "--add-host", h)
	}
	if spec.MemoryBytes > 0 {
		args = append(args, "-m", strconv.FormatInt(spec.MemoryBytes, 10))
	}
	if spec.CPULimit > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(spec.CPULimit, 'f', -1, 64))
	}
	if spec.Network != "" {
		args = append(args, "--network", spec.Network)
		for _, alias := range spec.NetworkAliases {
			args = append(args, "--network-alias", alias)
		}
	}
	args = append(args, spec.Image)

	id, err := r.run(ctx, args...)
	if err != nil {
		return "", runner.NewRunnerError("Run", spec.Name, err, false)
	}
	return id, nil
}

func (r *Runtime) Stop(ctx context.Context, containerID string) error {
	if _, err := r.run(ctx, "stop", containerID); err != nil {
		if isNotFound(err) {
			return nil
		}
		return runner.NewRunnerError("Stop", containerID, err, true)
	}
	return nil
}

func (r *Runtime) Restart(ctx context.Context, containerID string) error {
	if _, err := r.run(ctx, "start", containerID); err != nil {
		if isNotFound(err) {
			return runner.NewRunnerError("Restart", containerID, runner.ErrNotFound, false)
		}
		return runner.NewRunnerError("Restart", containerID, err, true)
	}
	return nil
}

func (r *Runtime) Remove(ctx context.Context, containerID string) error {
	if _, err := r.run(ctx, "rm", "-f", containerID); err != nil {
		if isNotFound(err) {
			return nil
		}
		return runner.NewRunnerError("Remove", containerID, err, true)
	}
	return nil
}

func (r *Runtime) Inspect(ctx context.Context, containerID string) (*runner.ContainerInfo, error) {
	out, err := r.run(ctx, "inspect", "--format",
		"{{.Id}}|{{.Name}}|{{.State.Status}}|{{.State.Running}}", containerID)
	if err != nil {
		if isNotFound(err) {
			return nil, runner.ErrNotFound
		}
		return nil, runner.NewRunnerError("Inspect", containerID, err, true)
	}
	parts := strings.SplitN(out, "|", 4)
	if len(parts) < 4 {
		return nil, runner.NewRunnerError("Inspect", containerID, fmt.Errorf("unexpected inspect output %q", out), false)
	}
	return &runner.ContainerInfo{
		ID:      parts[0],
		Name:    strings.TrimPrefix(parts[1], "/"),
		Status:  parts[2],
		Running: parts[3] == "true",
	}, nil
}

func (r *Runtime) Stats(ctx context.Context, containerID string) (*runner.ContainerStats, error) {
	out, err := r.run(ctx, "stats", "--no-stream", "--format",
		"{{.CPUPerc}}|{{.MemUsage}}|{{.NetIO}}", containerID)
	if err != nil {
		return nil, runner.NewRunnerError("Stats", containerID, err, true)
	}
	parts := strings.SplitN(out, "|", 3)
	if len(parts) < 3 {
		return nil, runner.NewRunnerError("Stats", containerID, fmt.Errorf("unexpected stats output %q", out), false)
	}

	cpuPercent := parsePercent(parts[0])
	memUsage, memLimit := parseMemUsage(parts[1])
	rx, tx := parseNetIO(parts[2])

	return &runner.ContainerStats{
		CPUPercent:  cpuPercent,
		MemoryUsage: memUsage,
		MemoryLimit: memLimit,
		NetworkRx:   rx,
		NetworkTx:   tx,
	}, nil
}

func (r *Runtime) Logs(ctx context.Context, containerID string, opts runner.LogOptions) (*runner.LogReader, error) {
	args := []string{"logs"}
	if opts.Follow {
		args = append(args, "-f")
	}
	if opts.Timestamps {
		args = append(args, "-t")
	}
	if opts.Tail > 0 {
		args = append(args, "--tail", strconv.Itoa(opts.Tail))
	}
	args = append(args, containerID)

	cmd := exec.CommandContext(ctx, r.bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, runner.NewRunnerError("Logs", containerID, err, false)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, runner.NewRunnerError("Logs", containerID, err, true)
	}
	return &runner.LogReader{ReadCloser: stdout}, nil
}

func (r *Runtime) Exec(ctx context.Context, containerID string, argv []string) (*runner.ExecResult, error) {
	args := append([]string{"exec", containerID}, argv...)
	cmd := exec.CommandContext(ctx, r.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return nil, runner.NewRunnerError("Exec", containerID, err, false)
	}

	return &runner.ExecResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

func (r *Runtime) ListContainers(ctx context.Context, namePrefix string) ([]runner.ContainerInfo, error) {
	out, err := r.run(ctx, "ps", "-a", "--filter", "label="+labelManaged, "--format",
		"{{.ID}}|{{.Names}}|{{.State}}")
	if err != nil {
		return nil, runner.NewRunnerError("ListContainers", "", err, true)
	}

	var result []runner.ContainerInfo
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 3)
		if len(parts) < 3 {
			continue
		}
		name := parts[1]
		if namePrefix != "" && !strings.HasPrefix(name, namePrefix) {
			continue
		}
		result = append(result, runner.ContainerInfo{
			ID:      parts[0],
			Name:    name,
			Status:  parts[2],
			Running: strings.EqualFold(parts[2], "running"),
		})
	}
	return result, nil
}

func (r *Runtime) Pull(ctx context.Context, imageRef string) error {
	if _, err := r.run(ctx, "pull", imageRef); err != nil {
		return runner.NewRunnerError("Pull", imageRef, err, true)
	}
	return nil
}

func (r *Runtime) RemoveImage(ctx context.Context, tag string) error {
	if _, err := r.run(ctx, "rmi", tag); err != nil {
		if isNotFound(err) {
			return nil
		}
		if strings.Contains(err.Error(), "image is in use") || strings.Contains(err.Error(), "image used by") {
			return runner.ErrImageInUse
		}
		return runner.NewRunnerError("RemoveImage", tag, err, false)
	}
	return nil
}

func (r *Runtime) PruneImages(ctx context.Context) (int64, error) {
	out, err := r.run(ctx, "image", "prune", "-f")
	if err != nil {
		return 0, runner.NewRunnerError("PruneImages", "", err, true)
	}
	return parseReclaimed(out), nil
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such container") || strings.Contains(msg, "no such object") ||
		strings.Contains(msg, "no such image")
}

func parsePercent(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	return v
}

// parseMemUsage parses podman's "12.3MiB / 256MiB" stats format.
func parseMemUsage(s string) (usage, limit int64) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	return parseByteSize(parts[0]), parseByteSize(parts[1])
}

func parseNetIO(s string) (rx, tx int64) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	return parseByteSize(parts[0]), parseByteSize(parts[1])
}

// parseByteSize parses human-readable sizes like "12.3MiB", "1GB", "512B".
func parseByteSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	units := []struct {
		suffix string
		mult   float64
	}{
		{"GiB", 1 << 30}, {"MiB", 1 << 20}, {"KiB", 1 << 10},
		{"GB", 1e9}, {"MB", 1e6}, {"KB", 1e3}, {"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			v, err := strconv.ParseFloat(strings.TrimSuffix(s, u.suffix), 64)
			if err != nil {
				return 0
			}
			return int64(v * u.mult)
		}
	}
	v, _ := strconv.ParseFloat(s, 64)
	return int64(v)
}

// parseReclaimed extracts the "Total reclaimed space: 12.3MB" trailer line
// podman's prune commands share with Docker's CLI.
func parseReclaimed(out string) int64 {
	for _, line := range strings.Split(out, "\n") {
		if idx := strings.Index(line, "reclaimed space:"); idx >= 0 {
			size := strings.TrimSpace(line[idx+len("reclaimed space:"):])
			return parseByteSize(strings.ReplaceAll(size, " ", ""))
		}
	}
	return 0
}
