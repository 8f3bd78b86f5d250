package metrics

import (
	"context"
	"testing"
	"time"

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

func TestSampleInsertsOneRowPerRunningContainer(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")
	insertRunningDeployment(t, st, "dep1", "app1", "container-1")

	rt := &runner.MockRuntime{
		StatsFunc: func(ctx context.Context, containerID string) (*runner.ContainerStats, error) {
			return &runner.ContainerStats{CPUPercent: 12.5, MemoryUsage: 1024, MemoryLimit: 4096}, nil
		},
	}

	c := New(st, rt, time.Minute, 24)
	require.NoError(t, c.Sample(context.Background()))

	metrics, err := st.LatestMetricsSince(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	require.Equal(t, "app1", metrics[0].AppID)
	require.Equal(t, 12.5, metrics[0].CPUPercent)
	require.Equal(t, int64(1024), metrics[0].MemoryBytes)
	require.Equal(t, int64(4096), metrics[0].MemoryLimitBytes)
}

func TestSampleSkipsContainerThatFailsStats(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")
	insertApp(t, st, "app2")
	insertRunningDeployment(t, st, "dep1", "app1", "container-1")
	insertRunningDeployment(t, st, "dep2", "app2", "container-2")

	rt := &runner.MockRuntime{
		StatsFunc: func(ctx context.Context, containerID string) (*runner.ContainerStats, error) {
			if containerID == "container-1" {
				return nil, runner.ErrNotFound
			}
			return &runner.ContainerStats{CPUPercent: 5}, nil
		},
	}

	c := New(st, rt, time.Minute, 24)
	err := c.Sample(context.Background())
	require.Error(t, err, "a partial failure is surfaced, not silently dropped")

	metrics, err := st.LatestMetricsSince(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Len(t, metrics, 1, "the healthy container's sample is still recorded")
	require.Equal(t, "app2", metrics[0].AppID)
}

func TestPruneDeletesOldSamples(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")

	old := time.Now().Add(-48 * time.Hour).UTC().Format(store.TimeFormat)
	_, err := st.DB.Exec(`INSERT INTO resource_metrics (app_id, timestamp, cpu_percent) VALUES (?, ?, ?)`, "app1", old, 1.0)
	require.NoError(t, err)

	c := New(st, &runner.MockRuntime{}, time.Minute, 24)
	n, err := c.Prune(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
