package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rivetr/rivetr/internal/enum"
)

// RunningDeployments returns every Deployment currently in status=running,
// used by both the monitor's per-tick scan and its startup reconciliation
// pass.
func (s *Store) RunningDeployments(ctx context.Context) ([]Deployment, error) {
	return s.deploymentsByStatus(ctx, enum.DeploymentStatusRunning)
}

func (s *Store) deploymentsByStatus(ctx context.Context, status enum.DeploymentStatus) ([]Deployment, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, app_id, commit_sha, commit_message, status, container_id, image_tag, error_message, started_at, finished_at
		FROM deployments WHERE status = ?`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeployments(rows)
}

func scanDeployments(rows *sql.Rows) ([]Deployment, error) {
	var out []Deployment
	for rows.Next() {
		var d Deployment
		var commitSHA, commitMessage, containerID, imageTag, errMsg, finishedAt sql.NullString
		var status, startedAt string
		if err := rows.Scan(&d.ID, &d.AppID, &commitSHA, &commitMessage, &status, &containerID, &imageTag, &errMsg, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		d.Status = enum.DeploymentStatus(status)
		d.CommitSHA = nullToStr(commitSHA)
		d.CommitMessage = nullToStr(commitMessage)
		d.ContainerID = nullToStr(containerID)
		d.ImageTag = nullToStr(imageTag)
		d.ErrorMessage = nullToStr(errMsg)
		started, err := time.Parse(TimeFormat, startedAt)
		if err != nil {
			return nil, err
		}
		d.StartedAt = started
		fin, err := nullToTime(finishedAt)
		if err != nil {
			return nil, err
		}
		d.FinishedAt = fin
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeploymentsForCleanup returns terminal (failed/stopped) deployments for an
// app ordered newest-first, skipping the most recent `keep` rows — the
// query shape backing §4.7 step 1.
func (s *Store) DeploymentsForCleanup(ctx context.Context, appID string, keep int) ([]Deployment, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, app_id, commit_sha, commit_message, status, container_id, image_tag, error_message, started_at, finished_at
		FROM deployments
		WHERE app_id = ? AND status IN ('failed','stopped')
		ORDER BY started_at DESC`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	all, err := scanDeployments(rows)
	if err != nil {
		return nil, err
	}
	if len(all) <= keep {
		return nil, nil
	}
	return all[keep:], nil
}

// UpdateDeploymentStatus transitions a deployment and records the optional
// error message / finished_at timestamp, matching §4.2's terminal-state
// contract.
func (s *Store) UpdateDeploymentStatus(ctx context.Context, id string, status enum.DeploymentStatus, errMsg *string, finishedAt *time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE deployments SET status = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		string(status), strToNull(errMsg), timeToNull(finishedAt), id)
	return err
}

// DeleteDeployment removes a Deployment and its logs (logs first, to honor
// the foreign-key ordering the original Rust implementation observes
// explicitly even though this schema's ON DELETE CASCADE would do it too).
func (s *Store) DeleteDeployment(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM deployment_logs WHERE deployment_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM deployments WHERE id = ?`, id)
		return err
	})
}

// InsertDeploymentLog appends an audit row for a deployment transition or
// monitor action.
func (s *Store) InsertDeploymentLog(ctx context.Context, deploymentID string, level enum.LogLevel, message string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO deployment_logs (id, deployment_id, timestamp, level, message) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), deploymentID, time.Now().UTC().Format(TimeFormat), string(level), message)
	return err
}

// Apps returns the (id, name) pair for every App, used by cleanup and cost
// calculation's per-app iteration.
func (s *Store) Apps(ctx context.Context) ([]App, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name FROM apps`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []App
	for rows.Next() {
		var a App
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
