package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
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

func insertDatabase(t *testing.T, st *store.Store, id, dbType, status, containerID string, creds store.DatabaseCredentials) {
	t.Helper()
	now := time.Now().UTC().Format(store.TimeFormat)
	raw, err := json.Marshal(creds)
	require.NoError(t, err)
	_, err = st.DB.Exec(`INSERT INTO databases (id, name, db_type, container_id, status, credentials, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, id+"-name", dbType, containerID, status, string(raw), now, now)
	require.NoError(t, err)
}

func insertSchedule(t *testing.T, st *store.Store, id, databaseID string, nextRunAt time.Time, retentionCount int) {
	t.Helper()
	now := time.Now().UTC().Format(store.TimeFormat)
	_, err := st.DB.Exec(`INSERT INTO database_backup_schedules (id, database_id, enabled, schedule_type, schedule_hour, retention_count, next_run_at, created_at, updated_at)
		VALUES (?, ?, 1, 'daily', 2, ?, ?, ?, ?)`,
		id, databaseID, retentionCount, nextRunAt.UTC().Format(store.TimeFormat), now, now)
	require.NoError(t, err)
}

func TestRunCycleBacksUpDuePostgresSchedule(t *testing.T) {
	st := newTestStore(t)
	insertDatabase(t, st, "db1", "postgres", "running", "container-1", store.DatabaseCredentials{Username: "app", Password: "secret", Database: "appdb"})
	insertSchedule(t, st, "sched1", "db1", time.Now().Add(-time.Minute), 7)

	dir := t.TempDir()
	var ranCommands [][]string
	rt := &runner.MockRuntime{
		ExecFunc: func(ctx context.Context, containerID string, argv []string) (*runner.ExecResult, error) {
			ranCommands = append(ranCommands, argv)
			return &runner.ExecResult{ExitCode: 0, Stdout: "-- dump contents --"}, nil
		},
	}

	sched := New(st, rt, dir, "backups")
	stats, err := sched.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.SchedulesChecked)
	require.Equal(t, 1, stats.BackupsCompleted)
	require.Equal(t, 0, stats.BackupsFailed)
	require.GreaterOrEqual(t, len(ranCommands), 2, "pg_dump plus the cat-copy step")

	backups, err := st.CompletedBackups(context.Background(), "db1")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	require.NotNil(t, backups[0].FilePath)

	contents, err := os.ReadFile(*backups[0].FilePath)
	require.NoError(t, err)
	require.Equal(t, "-- dump contents --", string(contents))
	require.True(t, filepath.IsAbs(*backups[0].FilePath) || filepath.IsAbs(dir))
}

func TestRunCycleSkipsNonRunningDatabaseButAdvancesSchedule(t *testing.T) {
	st := newTestStore(t)
	insertDatabase(t, st, "db1", "postgres", "stopped", "container-1", store.DatabaseCredentials{Username: "app", Password: "secret"})
	insertSchedule(t, st, "sched1", "db1", time.Now().Add(-time.Minute), 7)

	rt := &runner.MockRuntime{}
	sched := New(st, rt, t.TempDir(), "backups")
	stats, err := sched.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.SchedulesChecked)
	require.Equal(t, 1, stats.BackupsCompleted, "skip-and-advance counts as a completed check, not a failure")

	due, err := st.DueBackupSchedules(context.Background())
	require.NoError(t, err)
	require.Empty(t, due, "the schedule's next_run_at was advanced past now")
}

func TestRunCycleRecordsFailureOnNonZeroExit(t *testing.T) {
	st := newTestStore(t)
	insertDatabase(t, st, "db1", "postgres", "running", "container-1", store.DatabaseCredentials{Username: "app", Password: "secret"})
	insertSchedule(t, st, "sched1", "db1", time.Now().Add(-time.Minute), 7)

	rt := &runner.MockRuntime{
		ExecFunc: func(ctx context.Context, containerID string, argv []string) (*runner.ExecResult, error) {
			return &runner.ExecResult{ExitCode: 1, Stderr: "permission denied"}, nil
		},
	}

	sched := New(st, rt, t.TempDir(), "backups")
	stats, err := sched.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.BackupsFailed)

	backups, err := st.CompletedBackups(context.Background(), "db1")
	require.NoError(t, err)
	require.Empty(t, backups)
}

func TestCleanupOldBackupsEnforcesRetention(t *testing.T) {
	st := newTestStore(t)
	insertDatabase(t, st, "db1", "postgres", "running", "container-1", store.DatabaseCredentials{Username: "app", Password: "secret"})

	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, "backup.sql")
		require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))
		b, err := st.CreateDatabaseBackup(context.Background(), "db1", enum.BackupTypeManual)
		require.NoError(t, err)
		_, err = st.MarkBackupRunning(context.Background(), b.ID)
		require.NoError(t, err)
		require.NoError(t, st.MarkBackupCompleted(context.Background(), b.ID, path, 4, "sql"))
	}

	sched := New(st, &runner.MockRuntime{}, dir, "backups")
	deleted, err := sched.CleanupOldBackups(context.Background(), "db1", 1)
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	remaining, err := st.CompletedBackups(context.Background(), "db1")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}
