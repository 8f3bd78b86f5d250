package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rivetr/rivetr/internal/config"
	"github.com/rivetr/rivetr/internal/enum"
	"github.com/rivetr/rivetr/internal/runner"
	"github.com/rivetr/rivetr/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func insertApp(t *testing.T, st *store.Store, id string) {
	t.Helper()
	now := time.Now().UTC().Format(store.TimeFormat)
	_, err := st.DB.Exec(`INSERT INTO apps (id, name, git_url, port, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, id+"-name", "https://example.test/"+id, 8080, now, now)
	require.NoError(t, err)
}

func insertRunningDeployment(t *testing.T, st *store.Store, id, appID, containerID string) {
	t.Helper()
	now := time.Now().UTC().Format(store.TimeFormat)
	_, err := st.DB.Exec(`INSERT INTO deployments (id, app_id, status, container_id, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, appID, string(enum.DeploymentStatusRunning), containerID, now)
	require.NoError(t, err)
}

func defaultConfig() config.ContainerMonitorConfig {
	return config.ContainerMonitorConfig{
		Enabled:            true,
		CheckIntervalSecs:  15,
		MaxRestartAttempts: 3,
		InitialBackoffSecs: 1,
		MaxBackoffSecs:     4,
		StableDurationSecs: 60,
	}
}

func TestMonitorTickRestartsCrashedDeployment(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")
	insertRunningDeployment(t, st, "dep1", "app1", "container-1")

	var restarted []string
	rt := &runner.MockRuntime{
		InspectFunc: func(ctx context.Context, containerID string) (*runner.ContainerInfo, error) {
			return &runner.ContainerInfo{ID: containerID, Running: false, Status: "exited"}, nil
		},
		RestartFunc: func(ctx context.Context, containerID string) error {
			restarted = append(restarted, containerID)
			return nil
		},
	}

	m := New(st, rt, defaultConfig(), nil, nil)
	m.Tick(context.Background())

	require.Equal(t, []string{"container-1"}, restarted)
}

func TestMonitorTickDoesNothingWhenRunning(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")
	insertRunningDeployment(t, st, "dep1", "app1", "container-1")

	restartCalls := 0
	rt := &runner.MockRuntime{
		InspectFunc: func(ctx context.Context, containerID string) (*runner.ContainerInfo, error) {
			return &runner.ContainerInfo{ID: containerID, Running: true, Status: "running"}, nil
		},
		RestartFunc: func(ctx context.Context, containerID string) error {
			restartCalls++
			return nil
		},
	}

	m := New(st, rt, defaultConfig(), nil, nil)
	m.Tick(context.Background())

	require.Equal(t, 0, restartCalls)
}

func TestMonitorMarksDeploymentFailedAfterExhaustingAttempts(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")
	insertRunningDeployment(t, st, "dep1", "app1", "container-1")

	rt := &runner.MockRuntime{
		InspectFunc: func(ctx context.Context, containerID string) (*runner.ContainerInfo, error) {
			return &runner.ContainerInfo{ID: containerID, Running: false}, nil
		},
		RestartFunc: func(ctx context.Context, containerID string) error { return nil },
	}

	cfg := defaultConfig()
	cfg.InitialBackoffSecs = 0
	cfg.MaxBackoffSecs = 0
	cfg.MaxRestartAttempts = 2

	m := New(st, rt, cfg, nil, nil)
	ctx := context.Background()
	// Exhaust the restart budget: with zero backoff every tick is due.
	m.Tick(ctx)
	m.Tick(ctx)
	m.Tick(ctx)

	row := st.DB.QueryRow(`SELECT status FROM deployments WHERE id = ?`, "dep1")
	var status string
	require.NoError(t, row.Scan(&status))
	require.Equal(t, string(enum.DeploymentStatusFailed), status)
}

func TestMonitorMarksDeploymentFailedImmediatelyWhenContainerNotFound(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")
	insertRunningDeployment(t, st, "dep1", "app1", "container-1")

	restartCalls := 0
	rt := &runner.MockRuntime{
		InspectFunc: func(ctx context.Context, containerID string) (*runner.ContainerInfo, error) {
			return nil, errors.New("no such container")
		},
		RestartFunc: func(ctx context.Context, containerID string) error {
			restartCalls++
			return nil
		},
	}

	// A single tick must be enough: an inspect failure bypasses the
	// restart/backoff path entirely (unlike "exists but stopped").
	m := New(st, rt, defaultConfig(), nil, nil)
	m.Tick(context.Background())

	require.Equal(t, 0, restartCalls)

	var status, errMsg string
	row := st.DB.QueryRow(`SELECT status, error_message FROM deployments WHERE id = ?`, "dep1")
	require.NoError(t, row.Scan(&status, &errMsg))
	require.Equal(t, string(enum.DeploymentStatusFailed), status)
	require.Equal(t, "Container not found", errMsg)
}

func TestReconcileStartupFlipsStaleRunningToStopped(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")
	insertRunningDeployment(t, st, "dep1", "app1", "container-1")

	rt := &runner.MockRuntime{
		InspectFunc: func(ctx context.Context, containerID string) (*runner.ContainerInfo, error) {
			return &runner.ContainerInfo{ID: containerID, Running: false}, nil
		},
	}

	m := New(st, rt, defaultConfig(), nil, nil)
	require.NoError(t, m.ReconcileStartup(context.Background()))

	row := st.DB.QueryRow(`SELECT status FROM deployments WHERE id = ?`, "dep1")
	var status string
	require.NoError(t, row.Scan(&status))
	require.Equal(t, string(enum.DeploymentStatusStopped), status)
}
