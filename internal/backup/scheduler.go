// Package backup implements the database backup scheduler (spec.md §4.8):
// it scans for due DatabaseBackupSchedule rows, dumps each database with the
// engine-appropriate command executed inside its container, writes the
// result to the host filesystem, and enforces a per-database retention
// count (original_source/src/engine/database_backups.rs).
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rivetr/rivetr/internal/enum"
	"github.com/rivetr/rivetr/internal/logger"
	"github.com/rivetr/rivetr/internal/runner"
	"github.com/rivetr/rivetr/internal/secrets"
	"github.com/rivetr/rivetr/internal/store"
	"go.uber.org/zap"
)

// Stats summarizes one backup cycle.
type Stats struct {
	SchedulesChecked int
	BackupsCompleted int
	BackupsFailed    int
}

// Scheduler drives due scheduled backups to completion and enforces
// retention.
type Scheduler struct {
	store   *store.Store
	runtime runner.Runtime
	dataDir string
	subDir  string
}

func New(st *store.Store, rt runner.Runtime, dataDir, backupSubDir string) *Scheduler {
	return &Scheduler{store: st, runtime: rt, dataDir: dataDir, subDir: backupSubDir}
}

// RunCycle checks for and executes every due schedule, then enforces
// retention for each database it touched.
func (s *Scheduler) RunCycle(ctx context.Context) (Stats, error) {
	log := logger.GetLogger(ctx).With(zap.String("component", "backup"))
	var stats Stats

	due, err := s.store.DueBackupSchedules(ctx)
	if err != nil {
		return stats, err
	}
	if len(due) == 0 {
		return stats, nil
	}
	log.Info("found scheduled backups due", zap.Int("count", len(due)))

	for _, schedule := range due {
		stats.SchedulesChecked++

		if err := s.runScheduledBackup(ctx, schedule); err != nil {
			stats.BackupsFailed++
			log.Error("scheduled backup failed", zap.String("database_id", schedule.DatabaseID), zap.Error(err))
		} else {
			stats.BackupsCompleted++
			log.Info("scheduled backup completed", zap.String("database_id", schedule.DatabaseID))
		}

		if _, err := s.CleanupOldBackups(ctx, schedule.DatabaseID, schedule.RetentionCount); err != nil {
			log.Warn("cleanup of old backups failed", zap.String("database_id", schedule.DatabaseID), zap.Error(err))
		}
	}

	return stats, nil
}

func (s *Scheduler) runScheduledBackup(ctx context.Context, schedule store.DatabaseBackupSchedule) error {
	db, err := s.store.Database(ctx, schedule.DatabaseID)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("database %s not found", schedule.DatabaseID)
	}

	if db.Status != enum.ManagedDatabaseStatusRunning {
		logger.GetLogger(ctx).Warn("skipping backup for non-running database",
			zap.String("database", db.Name), zap.String("status", string(db.Status)))
		return s.store.AdvanceBackupSchedule(ctx, schedule)
	}

	if _, err := s.BackupDatabase(ctx, db, enum.BackupTypeScheduled); err != nil {
		// Still advance the schedule so a persistently failing backup
		// doesn't retry every tick forever.
		_ = s.store.AdvanceBackupSchedule(ctx, schedule)
		return err
	}

	return s.store.AdvanceBackupSchedule(ctx, schedule)
}

// BackupDatabase runs one backup of db, recording its lifecycle in
// database_backups and writing the dump under dataDir/subDir/databaseID/.
func (s *Scheduler) BackupDatabase(ctx context.Context, db *store.ManagedDatabase, backupType enum.BackupType) (*store.DatabaseBackup, error) {
	if db.ContainerID == nil || *db.ContainerID == "" {
		return nil, fmt.Errorf("database %s has no container", db.ID)
	}
	containerID := *db.ContainerID

	b, err := s.store.CreateDatabaseBackup(ctx, db.ID, backupType)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.MarkBackupRunning(ctx, b.ID); err != nil {
		return nil, err
	}

	backupDir := filepath.Join(s.dataDir, s.subDir, db.ID)
	if err := os.MkdirAll(backupDir, 0o700); err != nil {
		_ = s.store.MarkBackupFailed(ctx, b.ID, err.Error())
		return nil, err
	}

	format, ext := backupFormat(db.DBType)
	filename := fmt.Sprintf("%s_%s.%s", db.Name, time.Now().UTC().Format("20060102_150405"), ext)
	backupPath := filepath.Join(backupDir, filename)

	creds, err := decodeCredentials(db.Credentials)
	if err != nil {
		_ = s.store.MarkBackupFailed(ctx, b.ID, err.Error())
		return nil, err
	}

	dumpErr := s.dump(ctx, db.DBType, containerID, creds, backupPath)
	if dumpErr != nil {
		_ = s.store.MarkBackupFailed(ctx, b.ID, dumpErr.Error())
		return nil, dumpErr
	}

	info, statErr := os.Stat(backupPath)
	var fileSize int64
	if statErr == nil {
		fileSize = info.Size()
	}

	if err := s.store.MarkBackupCompleted(ctx, b.ID, backupPath, fileSize, format); err != nil {
		return nil, err
	}
	b.Status = enum.BackupStatusCompleted
	b.FilePath = &backupPath
	b.FileSize = &fileSize
	return b, nil
}

func backupFormat(engine enum.DatabaseEngine) (format, ext string) {
	switch engine {
	case enum.DatabaseEnginePostgres, enum.DatabaseEngineMySQL:
		return "sql", "sql"
	case enum.DatabaseEngineMongoDB:
		return "archive", "archive"
	case enum.DatabaseEngineRedis:
		return "rdb", "rdb"
	default:
		return "dump", "dump"
	}
}

func decodeCredentials(raw string) (store.DatabaseCredentials, error) {
	var creds store.DatabaseCredentials
	plain := raw
	if secrets.IsEncrypted(raw) {
		if secrets.DefaultEncryptor == nil {
			return creds, fmt.Errorf("database credentials are encrypted but no encryption key is configured")
		}
		decrypted, err := secrets.DefaultEncryptor.Decrypt(raw)
		if err != nil {
			return creds, fmt.Errorf("decrypting database credentials: %w", err)
		}
		plain = decrypted
	}
	if err := json.Unmarshal([]byte(plain), &creds); err != nil {
		return creds, fmt.Errorf("decoding database credentials: %w", err)
	}
	return creds, nil
}

func (s *Scheduler) dump(ctx context.Context, engine enum.DatabaseEngine, containerID string, creds store.DatabaseCredentials, backupPath string) error {
	switch engine {
	case enum.DatabaseEnginePostgres:
		return s.dumpPostgres(ctx, containerID, creds, backupPath)
	case enum.DatabaseEngineMySQL:
		return s.dumpMySQL(ctx, containerID, creds, backupPath)
	case enum.DatabaseEngineMongoDB:
		return s.dumpMongoDB(ctx, containerID, creds, backupPath)
	case enum.DatabaseEngineRedis:
		return s.dumpRedis(ctx, containerID, backupPath)
	default:
		return fmt.Errorf("unsupported database type: %s", engine)
	}
}

func (s *Scheduler) dumpPostgres(ctx context.Context, containerID string, creds store.DatabaseCredentials, backupPath string) error {
	dbName := creds.Database
	if dbName == "" {
		dbName = "postgres"
	}
	cmd := fmt.Sprintf("PGPASSWORD='%s' pg_dump -U %s -d %s -f /tmp/backup.sql", creds.Password, creds.Username, dbName)
	if err := s.runExec(ctx, containerID, []string{"sh", "-c", cmd}, "pg_dump"); err != nil {
		return err
	}
	return s.copyAndCleanup(ctx, containerID, "/tmp/backup.sql", backupPath)
}

func (s *Scheduler) dumpMySQL(ctx context.Context, containerID string, creds store.DatabaseCredentials, backupPath string) error {
	dbName := creds.Database
	if dbName == "" {
		dbName = creds.Username
	}
	password := creds.RootPassword
	if password == "" {
		password = creds.Password
	}
	cmd := fmt.Sprintf("mysqldump -u root -p'%s' %s > /tmp/backup.sql", password, dbName)
	if err := s.runExec(ctx, containerID, []string{"sh", "-c", cmd}, "mysqldump"); err != nil {
		return err
	}
	return s.copyAndCleanup(ctx, containerID, "/tmp/backup.sql", backupPath)
}

func (s *Scheduler) dumpMongoDB(ctx context.Context, containerID string, creds store.DatabaseCredentials, backupPath string) error {
	dbName := creds.Database
	if dbName == "" {
		dbName = "admin"
	}
	cmd := fmt.Sprintf("mongodump --username %s --password %s --authenticationDatabase admin --db %s --archive=/tmp/backup.archive",
		creds.Username, creds.Password, dbName)
	if err := s.runExec(ctx, containerID, []string{"sh", "-c", cmd}, "mongodump"); err != nil {
		return err
	}
	return s.copyAndCleanup(ctx, containerID, "/tmp/backup.archive", backupPath)
}

func (s *Scheduler) dumpRedis(ctx context.Context, containerID, backupPath string) error {
	if err := s.runExec(ctx, containerID, []string{"redis-cli", "BGSAVE"}, "redis-cli BGSAVE"); err != nil {
		return err
	}

	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	return s.copyFromContainer(ctx, containerID, "/data/dump.rdb", backupPath)
}

func (s *Scheduler) runExec(ctx context.Context, containerID string, argv []string, label string) error {
	res, err := s.runtime.Exec(ctx, containerID, argv)
	if err != nil {
		return fmt.Errorf("%s failed: %w", label, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s failed with exit code %d: %s", label, res.ExitCode, res.Stderr)
	}
	return nil
}

// copyAndCleanup copies the dump file out of the container then best-effort
// removes the temp file inside it.
func (s *Scheduler) copyAndCleanup(ctx context.Context, containerID, containerPath, hostPath string) error {
	if err := s.copyFromContainer(ctx, containerID, containerPath, hostPath); err != nil {
		return err
	}
	_, _ = s.runtime.Exec(ctx, containerID, []string{"rm", "-f", containerPath})
	return nil
}

func (s *Scheduler) copyFromContainer(ctx context.Context, containerID, containerPath, hostPath string) error {
	res, err := s.runtime.Exec(ctx, containerID, []string{"cat", containerPath})
	if err != nil {
		return fmt.Errorf("reading backup file from container: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("reading backup file from container: %s", res.Stderr)
	}
	return os.WriteFile(hostPath, []byte(res.Stdout), 0o600)
}

// CleanupOldBackups deletes completed backups beyond the retention count,
// removing both the on-disk file (best-effort) and the database record.
func (s *Scheduler) CleanupOldBackups(ctx context.Context, databaseID string, retentionCount int) (int, error) {
	log := logger.GetLogger(ctx).With(zap.String("component", "backup"))

	completed, err := s.store.CompletedBackups(ctx, databaseID)
	if err != nil {
		return 0, err
	}
	if len(completed) <= retentionCount {
		return 0, nil
	}

	deleted := 0
	for _, b := range completed[retentionCount:] {
		if b.FilePath != nil && *b.FilePath != "" {
			if err := os.Remove(*b.FilePath); err != nil && !os.IsNotExist(err) {
				log.Warn("failed to delete backup file", zap.String("backup_id", b.ID), zap.String("file_path", *b.FilePath), zap.Error(err))
			}
		}
		if err := s.store.DeleteDatabaseBackup(ctx, b.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	if deleted > 0 {
		log.Info("cleaned up old backups", zap.String("database_id", databaseID), zap.Int("deleted", deleted), zap.Int("retention", retentionCount))
	}
	return deleted, nil
}

// Run drives RunCycle on a fixed tick, with a startup delay to let the
// system stabilize before the first check.
func Run(ctx context.Context, s *Scheduler, interval time.Duration) {
	select {
	case <-time.After(30 * time.Second):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunCycle(ctx); err != nil {
				logger.GetLogger(ctx).Error("backup cycle failed", zap.Error(err))
			}
		}
	}
}
