// Package alert implements the resource alert evaluator (spec.md §4.4): for
// every app with a recent resource sample, it resolves the applicable
// threshold, requires two consecutive breaching samples before it fires
// (hysteresis), debounces re-notification of an already-firing alert, and
// auto-resolves once the metric falls back below threshold.
package alert

import (
	"context"
	"time"

	"github.com/rivetr/rivetr/internal/enum"
	"github.com/rivetr/rivetr/internal/logger"
	"github.com/rivetr/rivetr/internal/notify"
	"github.com/rivetr/rivetr/internal/notify/channel"
	"github.com/rivetr/rivetr/internal/store"
	"go.uber.org/zap"
)

// hysteresisThreshold is the number of consecutive breaching samples
// required before an alert event is created — a single spike never pages
// anyone.
const hysteresisThreshold = 2

// renotifyWindow bounds how often an already-firing alert re-sends its
// notification while it stays breached.
const renotifyWindow = 15 * time.Minute

// Dispatcher is the subset of notify.Dispatcher the evaluator depends on.
type Dispatcher interface {
	Enqueue(ctx context.Context, msg channel.Message)
}

// Evaluator runs one evaluation pass over every app's latest resource
// sample.
type Evaluator struct {
	store        *store.Store
	dispatcher   Dispatcher
	dashboardURL string
}

// New constructs an Evaluator. dispatcher may be nil (evaluation still
// updates breach counts and AlertEvent rows; it simply never notifies).
func New(st *store.Store, dispatcher Dispatcher, dashboardURL string) *Evaluator {
	return &Evaluator{store: st, dispatcher: dispatcher, dashboardURL: dashboardURL}
}

// EvaluateAll evaluates cpu/memory/disk for every app with a resource
// sample in the last 5 minutes.
func (e *Evaluator) EvaluateAll(ctx context.Context) error {
	log := logger.GetLogger(ctx).With(zap.String("component", "alert"))

	metrics, err := e.store.LatestMetricsSince(ctx, 5*time.Minute)
	if err != nil {
		return err
	}

	for _, m := range metrics {
		if err := e.evaluateMetric(ctx, m.AppID, enum.MetricTypeCPU, m.CPUPercent); err != nil {
			log.Error("evaluate cpu alert", zap.String("app_id", m.AppID), zap.Error(err))
		}
		if pct, ok := safePercent(m.MemoryBytes, m.MemoryLimitBytes); ok {
			if err := e.evaluateMetric(ctx, m.AppID, enum.MetricTypeMemory, pct); err != nil {
				log.Error("evaluate memory alert", zap.String("app_id", m.AppID), zap.Error(err))
			}
		}
		if pct, ok := safePercent(m.DiskBytes, m.DiskLimitBytes); ok {
			if err := e.evaluateMetric(ctx, m.AppID, enum.MetricTypeDisk, pct); err != nil {
				log.Error("evaluate disk alert", zap.String("app_id", m.AppID), zap.Error(err))
			}
		}
	}
	return nil
}

func safePercent(used, limit int64) (float64, bool) {
	if limit <= 0 {
		return 0, false
	}
	return float64(used) / float64(limit) * 100, true
}

// thresholdInfo is the outcome of resolving a threshold for (app, metric).
type thresholdInfo struct {
	threshold float64
	enabled   bool
}

// resolveThreshold implements the lookup precedence: per-app AlertConfig
// override, falling back to the process-wide GlobalAlertDefault. Returns
// nil if neither exists, meaning this (app, metric) has no applicable
// configuration at all and evaluation should skip it entirely.
func (e *Evaluator) resolveThreshold(ctx context.Context, appID string, metricType enum.MetricType) (*thresholdInfo, error) {
	cfg, err := e.store.AlertConfigFor(ctx, appID, metricType)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return &thresholdInfo{threshold: cfg.ThresholdPercent, enabled: cfg.Enabled}, nil
	}

	global, err := e.store.GlobalAlertDefaultFor(ctx, metricType)
	if err != nil {
		return nil, err
	}
	if global == nil {
		return nil, nil
	}
	return &thresholdInfo{threshold: global.ThresholdPercent, enabled: global.Enabled}, nil
}

func (e *Evaluator) evaluateMetric(ctx context.Context, appID string, metricType enum.MetricType, currentValue float64) error {
	info, err := e.resolveThreshold(ctx, appID, metricType)
	if err != nil {
		return err
	}
	if info == nil {
		return nil
	}
	if !info.enabled {
		// A disabled metric auto-resolves any stale firing event but
		// leaves the breach counter untouched: re-enabling it mid-streak
		// should not force two fresh breaches before it can fire again.
		return e.resolveIfFiring(ctx, appID, metricType, 0)
	}
	if currentValue <= info.threshold {
		if err := e.store.ResetBreachCount(ctx, appID, metricType); err != nil {
			return err
		}
		return e.resolveIfFiring(ctx, appID, metricType, currentValue)
	}
	return e.handleBreach(ctx, appID, metricType, currentValue, info.threshold)
}

func (e *Evaluator) resolveIfFiring(ctx context.Context, appID string, metricType enum.MetricType, currentValue float64) error {
	active, err := e.store.ActiveAlertEvent(ctx, appID, metricType)
	if err != nil || active == nil {
		return err
	}
	if err := e.store.ResolveAlertEvent(ctx, active.ID); err != nil {
		return err
	}
	return e.notify(ctx, func(appName string) channel.Message {
		return notify.AlertResolvedMessage(e.dashboardURL, appName, metricType, currentValue)
	}, appID)
}

func (e *Evaluator) handleBreach(ctx context.Context, appID string, metricType enum.MetricType, currentValue, threshold float64) error {
	k, err := e.store.IncrementBreachCount(ctx, appID, metricType)
	if err != nil {
		return err
	}
	if k < hysteresisThreshold {
		// First breach: wait for the next sample to confirm before firing.
		return nil
	}

	active, err := e.store.ActiveAlertEvent(ctx, appID, metricType)
	if err != nil {
		return err
	}
	severity := enum.DeriveSeverity(currentValue, threshold)

	if active == nil {
		event := &store.AlertEvent{
			AppID:               appID,
			MetricType:          metricType,
			ThresholdPercent:    threshold,
			CurrentValue:        currentValue,
			Status:              enum.AlertEventStatusFiring,
			FiredAt:             time.Now().UTC(),
			ConsecutiveBreaches: k,
		}
		if err := e.store.CreateAlertEvent(ctx, event); err != nil {
			return err
		}
		if err := e.store.UpdateAlertEventBreach(ctx, event.ID, currentValue, k, true); err != nil {
			return err
		}
		return e.notify(ctx, func(appName string) channel.Message {
			return notify.AlertFiredMessage(e.dashboardURL, appName, metricType, currentValue, threshold, severity)
		}, appID)
	}

	notifyDue := active.LastNotifiedAt == nil || time.Since(*active.LastNotifiedAt) >= renotifyWindow
	if err := e.store.UpdateAlertEventBreach(ctx, active.ID, currentValue, k, notifyDue); err != nil {
		return err
	}
	if !notifyDue {
		return nil
	}
	return e.notify(ctx, func(appName string) channel.Message {
		return notify.AlertFiredMessage(e.dashboardURL, appName, metricType, currentValue, threshold, severity)
	}, appID)
}

func (e *Evaluator) notify(ctx context.Context, build func(appName string) channel.Message, appID string) error {
	if e.dispatcher == nil {
		return nil
	}
	appName, err := e.store.AppName(ctx, appID)
	if err != nil {
		return err
	}
	e.dispatcher.Enqueue(ctx, build(appName))
	return nil
}

// Run spawns the evaluator's background loop: a 10s startup delay, then a
// ticker running one EvaluateAll pass per interval until ctx is cancelled.
func Run(ctx context.Context, e *Evaluator, interval time.Duration) {
	select {
	case <-time.After(10 * time.Second):
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
			if err := e.EvaluateAll(ctx); err != nil {
				logger.GetLogger(ctx).Error("alert evaluation pass failed", zap.Error(err))
			}
		}
	}
}
