package store

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/rivetr/rivetr/internal/enum"
)

// CostRates returns every administrator-edited rate row.
func (s *Store) CostRates(ctx context.Context) ([]CostRate, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT resource_type, rate_per_unit FROM cost_rates`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CostRate
	for rows.Next() {
		var r CostRate
		var rt string
		if err := rows.Scan(&rt, &r.RatePerUnit); err != nil {
			return nil, err
		}
		r.ResourceType = enum.MetricType(rt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertCostSnapshot writes (or idempotently overwrites) the cost row for
// (app_id, snapshot_date), matching §4.6 step 7 / §8 property 6.
func (s *Store) UpsertCostSnapshot(ctx context.Context, snap CostSnapshot) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO cost_snapshots (app_id, snapshot_date, avg_cpu_cores, avg_memory_gb, avg_disk_gb, cpu_cost, memory_cost, disk_cost, total_cost, sample_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(app_id, snapshot_date) DO UPDATE SET
			avg_cpu_cores = excluded.avg_cpu_cores,
			avg_memory_gb = excluded.avg_memory_gb,
			avg_disk_gb = excluded.avg_disk_gb,
			cpu_cost = excluded.cpu_cost,
			memory_cost = excluded.memory_cost,
			disk_cost = excluded.disk_cost,
			total_cost = excluded.total_cost,
			sample_count = excluded.sample_count`,
		snap.AppID, snap.SnapshotDate, snap.AvgCPUCores, snap.AvgMemoryGB, snap.AvgDiskGB,
		snap.CPUCost, snap.MemoryCost, snap.DiskCost, snap.TotalCost, snap.SampleCount)
	return err
}

// CostSnapshotFor loads a single snapshot, used by tests asserting
// idempotence (§8 property 6).
func (s *Store) CostSnapshotFor(ctx context.Context, appID, date string) (*CostSnapshot, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT app_id, snapshot_date, avg_cpu_cores, avg_memory_gb, avg_disk_gb, cpu_cost, memory_cost, disk_cost, total_cost, sample_count
		FROM cost_snapshots WHERE app_id = ? AND snapshot_date = ?`, appID, date)

	var snap CostSnapshot
	if err := row.Scan(&snap.AppID, &snap.SnapshotDate, &snap.AvgCPUCores, &snap.AvgMemoryGB, &snap.AvgDiskGB,
		&snap.CPUCost, &snap.MemoryCost, &snap.DiskCost, &snap.TotalCost, &snap.SampleCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

// CleanupOldCostSnapshots deletes snapshots beyond the retention policy.
func (s *Store) CleanupOldCostSnapshots(ctx context.Context, retentionDays int) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM cost_snapshots WHERE snapshot_date < date('now', ?)`, formatDaysAgo(retentionDays))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func formatDaysAgo(days int) string {
	return "-" + strconv.Itoa(days) + " days"
}
