// Package compose manages Docker-Compose-backed Services (spec.md
// §3/§4.1/§4.3): writing the per-service compose file to disk, bringing a
// service up/down, and probing whether its project still has running
// containers. `docker compose` is tried first, `docker-compose` is the
// legacy fallback, mirroring original_source/src/engine/
// container_monitor.rs's `check_compose_service_running` /
// `check_compose_service_running_legacy` pair.
package compose

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Manager drives `docker compose` (or the legacy `docker-compose` binary)
// against per-service project directories rooted at dataDir/services.
type Manager struct {
	dataDir string
}

// New constructs a Manager rooted at dataDir (spec.md §6's `data_dir`).
func New(dataDir string) *Manager {
	return &Manager{dataDir: dataDir}
}

// ProjectName returns the compose project name the control plane always
// uses for a given service, matching spec.md §4.1's naming convention.
func ProjectName(serviceName string) string {
	return "rivetr-svc-" + serviceName
}

// servicePath returns the directory and compose file path for a service.
func (m *Manager) servicePath(serviceName string) (dir, file string) {
	dir = filepath.Join(m.dataDir, "services", serviceName)
	file = filepath.Join(dir, "docker-compose.yml")
	return dir, file
}

// WriteFile persists composeContent to disk at
// `services/<service_name>/docker-compose.yml` (spec.md §6), creating the
// per-service directory if needed.
func (m *Manager) WriteFile(serviceName, composeContent string) (string, error) {
	dir, file := m.servicePath(serviceName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create service directory: %w", err)
	}
	if err := os.WriteFile(file, []byte(composeContent), 0o644); err != nil {
		return "", fmt.Errorf("write compose file: %w", err)
	}
	return file, nil
}

// Up runs `docker compose up -d` (falling back to `docker-compose`) for the
// named service's project.
func (m *Manager) Up(ctx context.Context, serviceName string) error {
	_, file := m.servicePath(serviceName)
	project := ProjectName(serviceName)
	return m.run(ctx, file, project, "up", "-d")
}

// Down runs `docker compose down` for the named service's project.
func (m *Manager) Down(ctx context.Context, serviceName string) error {
	_, file := m.servicePath(serviceName)
	project := ProjectName(serviceName)
	return m.run(ctx, file, project, "down")
}

func (m *Manager) run(ctx context.Context, composeFile, project string, subArgs ...string) error {
	args := append([]string{"compose", "-p", project, "-f", composeFile}, subArgs...)
	if out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput(); err == nil {
		return nil
	} else if _, lookErr := exec.LookPath("docker"); lookErr == nil {
		// docker exists but "compose" subcommand failed for a real reason
		// (not "no such binary") — still try the legacy binary, the same
		// fallback order the monitor's probe uses.
		_ = out
	}

	legacyArgs := append([]string{"-p", project, "-f", composeFile}, subArgs...)
	out, err := exec.CommandContext(ctx, "docker-compose", legacyArgs...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker-compose %s: %w: %s", strings.Join(legacyArgs, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// IsRunning reports whether the named service's compose project has any
// container in the "running" state. It tries `docker compose ps --format
// json` first, falling back to legacy `docker-compose ps -q` plus a
// per-container inspect when the modern subcommand is unavailable.
func (m *Manager) IsRunning(ctx context.Context, serviceName string, inspectRunning func(containerID string) bool) bool {
	project := ProjectName(serviceName)

	out, err := exec.CommandContext(ctx, "docker", "compose", "-p", project, "ps", "--format", "json").Output()
	if err == nil {
		text := string(out)
		return strings.Contains(text, `"State":"running"`) || strings.Contains(text, `"Status":"running"`)
	}

	return m.isRunningLegacy(ctx, project, inspectRunning)
}

func (m *Manager) isRunningLegacy(ctx context.Context, project string, inspectRunning func(containerID string) bool) bool {
	out, err := exec.CommandContext(ctx, "docker-compose", "-p", project, "ps", "-q").Output()
	if err != nil {
		return false
	}
	ids := strings.Fields(string(out))
	if len(ids) == 0 {
		return false
	}
	if inspectRunning == nil {
		return true
	}
	for _, id := range ids {
		if inspectRunning(id) {
			return true
		}
	}
	return false
}
