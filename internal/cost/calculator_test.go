package cost

import (
	"context"
	"testing"
	"time"

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

func insertMetric(t *testing.T, st *store.Store, appID, date string, cpuPercent float64, memoryBytes int64) {
	t.Helper()
	ts := date + "T12:00:00Z"
	_, err := st.DB.Exec(`INSERT INTO resource_metrics (app_id, timestamp, cpu_percent, memory_bytes, memory_limit_bytes) VALUES (?, ?, ?, ?, ?)`,
		appID, ts, cpuPercent, memoryBytes, int64(8*1024*1024*1024))
	require.NoError(t, err)
}

func TestCalculateForDateUsesDefaultRatesWhenNoneConfigured(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")
	// 50% of one core, 2GiB memory.
	insertMetric(t, st, "app1", "2026-07-30", 50, 2*1024*1024*1024)

	c := New(st, 90)
	result, err := c.CalculateForDate(context.Background(), "2026-07-30")
	require.NoError(t, err)
	require.Equal(t, 1, result.AppsProcessed)
	require.Equal(t, 1, result.SnapshotsCreated)
	require.Equal(t, 0, result.Errors)

	snap, err := st.CostSnapshotFor(context.Background(), "app1", "2026-07-30")
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.InDelta(t, 0.5, snap.AvgCPUCores, 0.0001)
	require.InDelta(t, 2.0, snap.AvgMemoryGB, 0.0001)
	require.InDelta(t, 0.0, snap.AvgDiskGB, 0.0001)

	wantCPUCost := 0.5 * (0.02 / 30.0)
	wantMemoryCost := 2.0 * (0.05 / 30.0)
	require.InDelta(t, wantCPUCost, snap.CPUCost, 0.0000001)
	require.InDelta(t, wantMemoryCost, snap.MemoryCost, 0.0000001)
	require.InDelta(t, wantCPUCost+wantMemoryCost, snap.TotalCost, 0.0000001)
	require.Equal(t, 1, snap.SampleCount)
}

func TestCalculateForDateHonorsConfiguredRates(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")
	insertMetric(t, st, "app1", "2026-07-30", 100, 1024*1024*1024)

	_, err := st.DB.Exec(`INSERT INTO cost_rates (resource_type, rate_per_unit) VALUES ('cpu', 1.0), ('memory', 1.0), ('disk', 1.0)`)
	require.NoError(t, err)

	c := New(st, 90)
	_, err = c.CalculateForDate(context.Background(), "2026-07-30")
	require.NoError(t, err)

	snap, err := st.CostSnapshotFor(context.Background(), "app1", "2026-07-30")
	require.NoError(t, err)
	require.InDelta(t, 1.0/30.0, snap.CPUCost, 0.0000001)
	require.InDelta(t, 1.0/30.0, snap.MemoryCost, 0.0000001)
}

func TestCalculateForDateSkipsAppsWithNoSamples(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")

	c := New(st, 90)
	result, err := c.CalculateForDate(context.Background(), "2026-07-30")
	require.NoError(t, err)
	require.Equal(t, 0, result.AppsProcessed)
	require.Equal(t, 0, result.SnapshotsCreated)
}

func TestCalculateForDateIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")
	insertMetric(t, st, "app1", "2026-07-30", 20, 1024*1024*1024)

	c := New(st, 90)
	_, err := c.CalculateForDate(context.Background(), "2026-07-30")
	require.NoError(t, err)
	first, err := st.CostSnapshotFor(context.Background(), "app1", "2026-07-30")
	require.NoError(t, err)

	_, err = c.CalculateForDate(context.Background(), "2026-07-30")
	require.NoError(t, err)
	second, err := st.CostSnapshotFor(context.Background(), "app1", "2026-07-30")
	require.NoError(t, err)

	require.Equal(t, first.TotalCost, second.TotalCost)
	require.Equal(t, first.SampleCount, second.SampleCount)
}

func TestPruneDeletesOldSnapshots(t *testing.T) {
	st := newTestStore(t)
	err := st.UpsertCostSnapshot(context.Background(), store.CostSnapshot{
		AppID:        "app1",
		SnapshotDate: "2000-01-01",
	})
	require.NoError(t, err)

	c := New(st, 1)
	n, err := c.Prune(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
