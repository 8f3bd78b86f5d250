package cleanup

import (
	"context"
	"testing"
	"time"

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

func insertDeployment(t *testing.T, st *store.Store, id, appID, status string, startedAt time.Time, containerID, imageTag string) {
	t.Helper()
	_, err := st.DB.Exec(`INSERT INTO deployments (id, app_id, status, container_id, image_tag, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, appID, status, containerID, imageTag, startedAt.UTC().Format(store.TimeFormat))
	require.NoError(t, err)
}

func TestRunKeepsMostRecentDeploymentsPerApp(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")

	base := time.Now().UTC()
	insertDeployment(t, st, "dep-old-2", "app1", "failed", base.Add(-3*time.Hour), "c-old-2", "img:old-2")
	insertDeployment(t, st, "dep-old-1", "app1", "stopped", base.Add(-2*time.Hour), "c-old-1", "img:old-1")
	insertDeployment(t, st, "dep-keep", "app1", "failed", base.Add(-1*time.Hour), "c-keep", "img:keep")

	var removedContainers, removedImages []string
	rt := &runner.MockRuntime{
		StopFunc:   func(ctx context.Context, containerID string) error { return nil },
		RemoveFunc: func(ctx context.Context, containerID string) error {
			removedContainers = append(removedContainers, containerID)
			return nil
		},
		RemoveImageFunc: func(ctx context.Context, tag string) error {
			removedImages = append(removedImages, tag)
			return nil
		},
	}

	c := New(st, rt, 1, false)
	stats, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.DeploymentsRemoved)
	require.Equal(t, 2, stats.ContainersRemoved)
	require.Equal(t, 2, stats.ImagesRemoved)
	require.ElementsMatch(t, []string{"c-old-1", "c-old-2"}, removedContainers)
	require.ElementsMatch(t, []string{"img:old-1", "img:old-2"}, removedImages)

	remaining, err := st.DeploymentsForCleanup(context.Background(), "app1", 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "dep-keep", remaining[0].ID)
}

func TestRunSkipsRunningDeployments(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")

	base := time.Now().UTC()
	insertDeployment(t, st, "dep-running", "app1", "running", base, "c-running", "img:running")
	insertDeployment(t, st, "dep-old", "app1", "failed", base.Add(-time.Hour), "c-old", "img:old")

	rt := &runner.MockRuntime{}
	c := New(st, rt, 0, false)
	stats, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.DeploymentsRemoved)

	var status string
	err = st.DB.QueryRow(`SELECT status FROM deployments WHERE id = 'dep-running'`).Scan(&status)
	require.NoError(t, err)
	require.Equal(t, "running", status)
}

func TestRunToleratesContainerAlreadyGone(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")
	insertDeployment(t, st, "dep-old", "app1", "failed", time.Now().UTC().Add(-time.Hour), "c-gone", "")

	rt := &runner.MockRuntime{
		StopFunc:   func(ctx context.Context, containerID string) error { return runner.ErrNotFound },
		RemoveFunc: func(ctx context.Context, containerID string) error { return runner.ErrNotFound },
	}

	c := New(st, rt, 0, false)
	stats, err := c.Run(context.Background())
	require.NoError(t, err, "a missing container is a soft failure, not a cycle error")
	require.Equal(t, 1, stats.DeploymentsRemoved)
	require.Equal(t, 0, stats.ContainersRemoved)
}

func TestRunPrunesImagesWhenEnabled(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")

	pruned := false
	rt := &runner.MockRuntime{
		PruneImagesFunc: func(ctx context.Context) (int64, error) {
			pruned = true
			return 4096, nil
		},
	}

	c := New(st, rt, 5, true)
	stats, err := c.Run(context.Background())
	require.NoError(t, err)
	require.True(t, pruned)
	require.Equal(t, int64(4096), stats.BytesReclaimed)
}
