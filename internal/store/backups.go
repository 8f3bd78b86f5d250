package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rivetr/rivetr/internal/enum"
)

// DueBackupSchedules returns every enabled schedule whose next_run_at has
// passed, the backup loop's per-tick selection (§4.8).
func (s *Store) DueBackupSchedules(ctx context.Context) ([]DatabaseBackupSchedule, error) {
	now := time.Now().UTC().Format(TimeFormat)
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, database_id, enabled, schedule_type, schedule_hour, schedule_day, retention_count, last_run_at, next_run_at, created_at, updated_at
		FROM database_backup_schedules
		WHERE enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DatabaseBackupSchedule
	for rows.Next() {
		var sc DatabaseBackupSchedule
		var enabled int
		var scheduleType string
		var scheduleDay sql.NullInt64
		var lastRunAt, nextRunAt sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&sc.ID, &sc.DatabaseID, &enabled, &scheduleType, &sc.ScheduleHour, &scheduleDay,
			&sc.RetentionCount, &lastRunAt, &nextRunAt, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		sc.Enabled = enabled != 0
		sc.ScheduleType = enum.BackupScheduleType(scheduleType)
		sc.ScheduleDay = nullToInt(scheduleDay)
		last, err := nullToTime(lastRunAt)
		if err != nil {
			return nil, err
		}
		sc.LastRunAt = last
		next, err := nullToTime(nextRunAt)
		if err != nil {
			return nil, err
		}
		sc.NextRunAt = next
		created, err := time.Parse(TimeFormat, createdAt)
		if err != nil {
			return nil, err
		}
		sc.CreatedAt = created
		updated, err := time.Parse(TimeFormat, updatedAt)
		if err != nil {
			return nil, err
		}
		sc.UpdatedAt = updated
		out = append(out, sc)
	}
	return out, rows.Err()
}

// AdvanceBackupSchedule records last_run_at=now and computes next_run_at per
// the schedule type (§4.8 step 6).
func (s *Store) AdvanceBackupSchedule(ctx context.Context, sc DatabaseBackupSchedule) error {
	now := time.Now().UTC()
	next := nextRunAt(sc, now)
	_, err := s.DB.ExecContext(ctx, `
		UPDATE database_backup_schedules SET last_run_at = ?, next_run_at = ?, updated_at = ? WHERE id = ?`,
		now.Format(TimeFormat), next.Format(TimeFormat), now.Format(TimeFormat), sc.ID)
	return err
}

// nextRunAt computes the next due time for a schedule per §4.8 step 6: daily
// schedules simply advance a day at the configured hour; weekly/monthly
// schedules align to sc.ScheduleDay rather than drifting to whatever
// weekday/day-of-month the tick happened to fire on. ScheduleDay is a
// time.Weekday value (0=Sunday..6=Saturday) for weekly schedules and a
// day-of-month (1-31, clamped to the target month's length) for monthly
// ones. A nil ScheduleDay (misconfigured weekly/monthly schedule) falls back
// to a flat 7-day/1-month offset from the configured hour.
func nextRunAt(sc DatabaseBackupSchedule, from time.Time) time.Time {
	switch sc.ScheduleType {
	case enum.BackupScheduleWeekly:
		return nextWeekday(from, sc.ScheduleDay, sc.ScheduleHour)
	case enum.BackupScheduleMonthly:
		return nextMonthDay(from, sc.ScheduleDay, sc.ScheduleHour)
	default: // daily
		base := time.Date(from.Year(), from.Month(), from.Day(), sc.ScheduleHour, 0, 0, 0, time.UTC)
		return base.AddDate(0, 0, 1)
	}
}

// nextWeekday returns the next occurrence (strictly after from) of the
// given weekday at hour, searching forward from tomorrow.
func nextWeekday(from time.Time, day *int, hour int) time.Time {
	if day == nil {
		base := time.Date(from.Year(), from.Month(), from.Day(), hour, 0, 0, 0, time.UTC)
		return base.AddDate(0, 0, 7)
	}
	target := time.Weekday(((*day % 7) + 7) % 7)
	cursor := from.AddDate(0, 0, 1)
	for i := 0; i < 7; i++ {
		if cursor.Weekday() == target {
			return time.Date(cursor.Year(), cursor.Month(), cursor.Day(), hour, 0, 0, 0, time.UTC)
		}
		cursor = cursor.AddDate(0, 0, 1)
	}
	return time.Date(cursor.Year(), cursor.Month(), cursor.Day(), hour, 0, 0, 0, time.UTC)
}

// nextMonthDay returns the next occurrence (strictly after from) of the
// given day-of-month at hour, clamped to the length of whichever month it
// lands in (so schedule_day=31 degrades gracefully in February).
func nextMonthDay(from time.Time, day *int, hour int) time.Time {
	if day == nil {
		base := time.Date(from.Year(), from.Month(), from.Day(), hour, 0, 0, 0, time.UTC)
		return base.AddDate(0, 1, 0)
	}
	cursor := time.Date(from.Year(), from.Month(), 1, hour, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		candidate := clampedMonthDay(cursor, *day, hour)
		if candidate.After(from) {
			return candidate
		}
		cursor = cursor.AddDate(0, 1, 0)
	}
	return clampedMonthDay(cursor, *day, hour)
}

func clampedMonthDay(monthStart time.Time, day, hour int) time.Time {
	lastDay := monthStart.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	if day < 1 {
		day = 1
	}
	return time.Date(monthStart.Year(), monthStart.Month(), day, hour, 0, 0, 0, time.UTC)
}

// CreateDatabaseBackup inserts a pending backup record.
func (s *Store) CreateDatabaseBackup(ctx context.Context, databaseID string, backupType enum.BackupType) (*DatabaseBackup, error) {
	now := time.Now().UTC()
	b := &DatabaseBackup{
		ID:         uuid.NewString(),
		DatabaseID: databaseID,
		BackupType: backupType,
		Status:     enum.BackupStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO database_backups (id, database_id, backup_type, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.DatabaseID, string(b.BackupType), string(b.Status), b.CreatedAt.Format(TimeFormat), b.UpdatedAt.Format(TimeFormat))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// MarkBackupRunning transitions a backup to running and records started_at.
func (s *Store) MarkBackupRunning(ctx context.Context, id string) (time.Time, error) {
	now := time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
		UPDATE database_backups SET status = ?, started_at = ?, updated_at = ? WHERE id = ?`,
		string(enum.BackupStatusRunning), now.Format(TimeFormat), now.Format(TimeFormat), id)
	return now, err
}

// MarkBackupCompleted records a successful backup's file metadata.
func (s *Store) MarkBackupCompleted(ctx context.Context, id, filePath string, fileSize int64, format string) error {
	now := time.Now().UTC().Format(TimeFormat)
	_, err := s.DB.ExecContext(ctx, `
		UPDATE database_backups SET status = ?, file_path = ?, file_size = ?, backup_format = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		string(enum.BackupStatusCompleted), filePath, fileSize, format, now, now, id)
	return err
}

// MarkBackupFailed records a backup failure's error message.
func (s *Store) MarkBackupFailed(ctx context.Context, id, errMsg string) error {
	now := time.Now().UTC().Format(TimeFormat)
	_, err := s.DB.ExecContext(ctx, `
		UPDATE database_backups SET status = ?, error_message = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		string(enum.BackupStatusFailed), errMsg, now, now, id)
	return err
}

// CompletedBackups returns completed backups for a database, newest first —
// the retention sweep's input population (§4.8 step 5).
func (s *Store) CompletedBackups(ctx context.Context, databaseID string) ([]DatabaseBackup, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, database_id, backup_type, status, file_path, file_size, backup_format, started_at, completed_at, error_message, created_at, updated_at
		FROM database_backups WHERE database_id = ? AND status = 'completed' ORDER BY created_at DESC`, databaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DatabaseBackup
	for rows.Next() {
		var b DatabaseBackup
		var backupType, status, createdAt, updatedAt string
		var filePath, backupFormat, errMsg, startedAt, completedAt sql.NullString
		var fileSize sql.NullInt64
		if err := rows.Scan(&b.ID, &b.DatabaseID, &backupType, &status, &filePath, &fileSize, &backupFormat,
			&startedAt, &completedAt, &errMsg, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		b.BackupType = enum.BackupType(backupType)
		b.Status = enum.BackupStatus(status)
		b.FilePath = nullToStr(filePath)
		b.FileSize = nullToInt64(fileSize)
		b.BackupFormat = nullToStr(backupFormat)
		b.ErrorMessage = nullToStr(errMsg)
		created, err := time.Parse(TimeFormat, createdAt)
		if err != nil {
			return nil, err
		}
		b.CreatedAt = created
		updated, err := time.Parse(TimeFormat, updatedAt)
		if err != nil {
			return nil, err
		}
		b.UpdatedAt = updated
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteDatabaseBackup removes a backup record (the caller is responsible
// for removing the on-disk file first).
func (s *Store) DeleteDatabaseBackup(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM database_backups WHERE id = ?`, id)
	return err
}
