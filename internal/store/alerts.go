package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rivetr/rivetr/internal/enum"
)

// AlertConfigFor resolves the per-app override for (app, metric_type), or
// nil if none exists — the first half of §4.4 step 2's threshold lookup.
func (s *Store) AlertConfigFor(ctx context.Context, appID string, metricType enum.MetricType) (*AlertConfig, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, app_id, metric_type, threshold_percent, enabled
		FROM alert_configs WHERE app_id = ? AND metric_type = ?`, appID, string(metricType))

	var c AlertConfig
	var appIDCol sql.NullString
	var mt string
	var enabled int
	if err := row.Scan(&c.ID, &appIDCol, &mt, &c.ThresholdPercent, &enabled); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.AppID = nullToStr(appIDCol)
	c.MetricType = enum.MetricType(mt)
	c.Enabled = enabled != 0
	return &c, nil
}

// GlobalAlertDefaultFor resolves the process-wide fallback threshold for a
// metric type, used when no AlertConfig override exists.
func (s *Store) GlobalAlertDefaultFor(ctx context.Context, metricType enum.MetricType) (*GlobalAlertDefault, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT metric_type, threshold_percent, enabled FROM global_alert_defaults WHERE metric_type = ?`, string(metricType))

	var g GlobalAlertDefault
	var mt string
	var enabled int
	if err := row.Scan(&mt, &g.ThresholdPercent, &enabled); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	g.MetricType = enum.MetricType(mt)
	g.Enabled = enabled != 0
	return &g, nil
}

// IncrementBreachCount atomically upserts the consecutive-breach counter for
// (app, metric_type) and returns the new count `k`, matching §4.4 step 3's
// "atomic upsert producing the new consecutive count".
func (s *Store) IncrementBreachCount(ctx context.Context, appID string, metricType enum.MetricType) (int, error) {
	now := time.Now().UTC().Format(TimeFormat)
	var k int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO alert_breach_counts (app_id, metric_type, consecutive_breaches, last_breach_at)
			VALUES (?, ?, 1, ?)
			ON CONFLICT(app_id, metric_type) DO UPDATE SET
				consecutive_breaches = consecutive_breaches + 1,
				last_breach_at = excluded.last_breach_at`, appID, string(metricType), now)
		if err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, `
			SELECT consecutive_breaches FROM alert_breach_counts WHERE app_id = ? AND metric_type = ?`, appID, string(metricType))
		return row.Scan(&k)
	})
	return k, err
}

// ResetBreachCount zeros the counter for (app, metric_type) — called when a
// reading falls back below threshold (§4.4 step 4).
func (s *Store) ResetBreachCount(ctx context.Context, appID string, metricType enum.MetricType) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO alert_breach_counts (app_id, metric_type, consecutive_breaches, last_breach_at)
		VALUES (?, ?, 0, NULL)
		ON CONFLICT(app_id, metric_type) DO UPDATE SET consecutive_breaches = 0, last_breach_at = NULL`,
		appID, string(metricType))
	return err
}

// ActiveAlertEvent returns the firing AlertEvent for (app, metric_type), or
// nil if none — the data model's invariant guarantees at most one.
func (s *Store) ActiveAlertEvent(ctx context.Context, appID string, metricType enum.MetricType) (*AlertEvent, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, app_id, metric_type, threshold_percent, current_value, status, fired_at, resolved_at, last_notified_at, consecutive_breaches
		FROM alert_events WHERE app_id = ? AND metric_type = ? AND status = 'firing'`, appID, string(metricType))
	return scanAlertEvent(row)
}

func scanAlertEvent(row rowScanner) (*AlertEvent, error) {
	var e AlertEvent
	var mt, status, firedAt string
	var resolvedAt, lastNotifiedAt sql.NullString
	if err := row.Scan(&e.ID, &e.AppID, &mt, &e.ThresholdPercent, &e.CurrentValue, &status, &firedAt, &resolvedAt, &lastNotifiedAt, &e.ConsecutiveBreaches); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	e.MetricType = enum.MetricType(mt)
	e.Status = enum.AlertEventStatus(status)
	fired, err := time.Parse(TimeFormat, firedAt)
	if err != nil {
		return nil, err
	}
	e.FiredAt = fired
	resolved, err := nullToTime(resolvedAt)
	if err != nil {
		return nil, err
	}
	e.ResolvedAt = resolved
	lastNotified, err := nullToTime(lastNotifiedAt)
	if err != nil {
		return nil, err
	}
	e.LastNotifiedAt = lastNotified
	return &e, nil
}

// CreateAlertEvent inserts a newly-firing AlertEvent.
func (s *Store) CreateAlertEvent(ctx context.Context, e *AlertEvent) error {
	e.ID = uuid.NewString()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO alert_events (id, app_id, metric_type, threshold_percent, current_value, status, fired_at, resolved_at, last_notified_at, consecutive_breaches)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AppID, string(e.MetricType), e.ThresholdPercent, e.CurrentValue, string(e.Status),
		e.FiredAt.UTC().Format(TimeFormat), timeToNull(e.ResolvedAt), timeToNull(e.LastNotifiedAt), e.ConsecutiveBreaches)
	return err
}

// UpdateAlertEventBreach updates current_value/consecutive_breaches for an
// existing firing event and optionally refreshes last_notified_at.
func (s *Store) UpdateAlertEventBreach(ctx context.Context, id string, currentValue float64, consecutiveBreaches int, notified bool) error {
	if notified {
		now := time.Now().UTC().Format(TimeFormat)
		_, err := s.DB.ExecContext(ctx, `
			UPDATE alert_events SET current_value = ?, consecutive_breaches = ?, last_notified_at = ? WHERE id = ?`,
			currentValue, consecutiveBreaches, now, id)
		return err
	}
	_, err := s.DB.ExecContext(ctx, `
		UPDATE alert_events SET current_value = ?, consecutive_breaches = ? WHERE id = ?`,
		currentValue, consecutiveBreaches, id)
	return err
}

// ResolveAlertEvent transitions a firing event to resolved.
func (s *Store) ResolveAlertEvent(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(TimeFormat)
	_, err := s.DB.ExecContext(ctx, `
		UPDATE alert_events SET status = 'resolved', resolved_at = ? WHERE id = ?`, now, id)
	return err
}

// EnabledNotificationChannels returns every channel available for fan-out.
func (s *Store) EnabledNotificationChannels(ctx context.Context) ([]NotificationChannel, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, channel_type, config, enabled FROM notification_channels WHERE enabled = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NotificationChannel
	for rows.Next() {
		var c NotificationChannel
		var ct string
		var enabled int
		if err := rows.Scan(&c.ID, &c.Name, &ct, &c.Config, &enabled); err != nil {
			return nil, err
		}
		c.ChannelType = enum.ChannelType(ct)
		c.Enabled = enabled != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// AppName resolves a single app's name, used when building notification
// payloads.
func (s *Store) AppName(ctx context.Context, appID string) (string, error) {
	var name string
	err := s.DB.QueryRowContext(ctx, `SELECT name FROM apps WHERE id = ?`, appID).Scan(&name)
	return name, err
}
