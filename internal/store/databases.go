package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rivetr/rivetr/internal/enum"
)

// RunningDatabases returns every ManagedDatabase currently in status=running.
func (s *Store) RunningDatabases(ctx context.Context) ([]ManagedDatabase, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, db_type, version, container_id, status, internal_port, external_port, credentials, volume_name, created_at, updated_at
		FROM databases WHERE status = ?`, string(enum.ManagedDatabaseStatusRunning))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDatabases(rows)
}

// Database loads a single ManagedDatabase by id.
func (s *Store) Database(ctx context.Context, id string) (*ManagedDatabase, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, db_type, version, container_id, status, internal_port, external_port, credentials, volume_name, created_at, updated_at
		FROM databases WHERE id = ?`, id)
	return scanDatabase(row)
}

func scanDatabases(rows *sql.Rows) ([]ManagedDatabase, error) {
	var out []ManagedDatabase
	for rows.Next() {
		d, err := scanDatabaseRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDatabase(row rowScanner) (*ManagedDatabase, error) {
	return scanDatabaseRow(row)
}

func scanDatabaseRow(row rowScanner) (*ManagedDatabase, error) {
	var d ManagedDatabase
	var containerID, credentials sql.NullString
	var externalPort sql.NullInt64
	var dbType, status, createdAt, updatedAt string
	if err := row.Scan(&d.ID, &d.Name, &dbType, &d.Version, &containerID, &status, &d.InternalPort, &externalPort, &credentials, &d.VolumeName, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.DBType = enum.DatabaseEngine(dbType)
	d.Status = enum.ManagedDatabaseStatus(status)
	d.ContainerID = nullToStr(containerID)
	d.ExternalPort = nullToInt(externalPort)
	d.Credentials = credentials.String
	created, err := time.Parse(TimeFormat, createdAt)
	if err != nil {
		return nil, err
	}
	d.CreatedAt = created
	updated, err := time.Parse(TimeFormat, updatedAt)
	if err != nil {
		return nil, err
	}
	d.UpdatedAt = updated
	return &d, nil
}

// UpdateDatabaseStatus transitions a ManagedDatabase's lifecycle status.
func (s *Store) UpdateDatabaseStatus(ctx context.Context, id string, status enum.ManagedDatabaseStatus) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE databases SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(TimeFormat), id)
	return err
}

// RunningServices returns every Service currently in status=running.
func (s *Store) RunningServices(ctx context.Context) ([]Service, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, compose_content, status, created_at, updated_at FROM services WHERE status = ?`,
		string(enum.ServiceStatusRunning))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var sv Service
		var status, createdAt, updatedAt string
		if err := rows.Scan(&sv.ID, &sv.Name, &sv.ComposeContent, &status, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		sv.Status = enum.ServiceStatus(status)
		created, err := time.Parse(TimeFormat, createdAt)
		if err != nil {
			return nil, err
		}
		sv.CreatedAt = created
		updated, err := time.Parse(TimeFormat, updatedAt)
		if err != nil {
			return nil, err
		}
		sv.UpdatedAt = updated
		out = append(out, sv)
	}
	return out, rows.Err()
}

// UpdateServiceStatus transitions a Service's lifecycle status.
func (s *Store) UpdateServiceStatus(ctx context.Context, id string, status enum.ServiceStatus) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE services SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(TimeFormat), id)
	return err
}
