package store

import (
	"context"
	"database/sql"
	"time"
)

// InsertResourceMetrics batch-inserts one row per successful stats sample
// from a single collector tick (§4.5 step 3).
func (s *Store) InsertResourceMetrics(ctx context.Context, metrics []ResourceMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO resource_metrics (app_id, timestamp, cpu_percent, memory_bytes, memory_limit_bytes, disk_bytes, disk_limit_bytes)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, m := range metrics {
			if _, err := stmt.ExecContext(ctx, m.AppID, m.Timestamp.UTC().Format(TimeFormat),
				m.CPUPercent, m.MemoryBytes, m.MemoryLimitBytes, m.DiskBytes, m.DiskLimitBytes); err != nil {
				return err
			}
		}
		return nil
	})
}

// RunningDeploymentContainers returns (app_id, container_id) pairs for every
// running deployment with a non-null container, the population the metrics
// collector samples each tick.
func (s *Store) RunningDeploymentContainers(ctx context.Context) (map[string]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT app_id, container_id FROM deployments
		WHERE status = 'running' AND container_id IS NOT NULL AND container_id != ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var appID, containerID string
		if err := rows.Scan(&appID, &containerID); err != nil {
			return nil, err
		}
		out[appID] = containerID
	}
	return out, rows.Err()
}

// PruneResourceMetrics deletes samples older than the retention window
// (§4.5's "parallel slower tick" hourly cleanup).
func (s *Store) PruneResourceMetrics(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(TimeFormat)
	res, err := s.DB.ExecContext(ctx, `DELETE FROM resource_metrics WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LatestMetricsSince returns the most recent ResourceMetric row for each app
// that has at least one sample within `since` of now — the population the
// alert evaluator walks each evaluation pass (§4.4).
func (s *Store) LatestMetricsSince(ctx context.Context, since time.Duration) ([]ResourceMetric, error) {
	cutoff := time.Now().Add(-since).UTC().Format(TimeFormat)
	rows, err := s.DB.QueryContext(ctx, `
		SELECT rm.app_id, rm.timestamp, rm.cpu_percent, rm.memory_bytes, rm.memory_limit_bytes, rm.disk_bytes, rm.disk_limit_bytes
		FROM resource_metrics rm
		INNER JOIN (
			SELECT app_id, MAX(timestamp) AS max_ts FROM resource_metrics WHERE timestamp > ? GROUP BY app_id
		) latest ON latest.app_id = rm.app_id AND latest.max_ts = rm.timestamp`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResourceMetric
	for rows.Next() {
		var m ResourceMetric
		var ts string
		if err := rows.Scan(&m.AppID, &ts, &m.CPUPercent, &m.MemoryBytes, &m.MemoryLimitBytes, &m.DiskBytes, &m.DiskLimitBytes); err != nil {
			return nil, err
		}
		t, err := time.Parse(TimeFormat, ts)
		if err != nil {
			return nil, err
		}
		m.Timestamp = t
		out = append(out, m)
	}
	return out, rows.Err()
}

// DistinctAppIDsForDate returns the apps that have at least one
// ResourceMetric row on the given (YYYY-MM-DD) date, the cost calculator's
// per-date app population (§4.6 step 2).
func (s *Store) DistinctAppIDsForDate(ctx context.Context, date string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT DISTINCT app_id FROM resource_metrics WHERE date(timestamp) = date(?)`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AggregatedMetricsForAppDate returns the averaged cpu/memory/disk values
// and sample count for one app on one date, feeding the cost calculator's
// per-app-per-date aggregation (§4.6 step 3).
func (s *Store) AggregatedMetricsForAppDate(ctx context.Context, appID, date string) (avgCPUPercent, avgMemoryBytes, avgDiskBytes float64, sampleCount int, err error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(cpu_percent), 0), COALESCE(AVG(memory_bytes), 0), COALESCE(AVG(disk_bytes), 0), COUNT(*)
		FROM resource_metrics WHERE app_id = ? AND date(timestamp) = date(?)`, appID, date)
	err = row.Scan(&avgCPUPercent, &avgMemoryBytes, &avgDiskBytes, &sampleCount)
	return
}
