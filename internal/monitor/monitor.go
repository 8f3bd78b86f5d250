package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rivetr/rivetr/internal/compose"
	"github.com/rivetr/rivetr/internal/config"
	"github.com/rivetr/rivetr/internal/enum"
	"github.com/rivetr/rivetr/internal/events"
	"github.com/rivetr/rivetr/internal/logger"
	"github.com/rivetr/rivetr/internal/runner"
	"github.com/rivetr/rivetr/internal/store"
	"go.uber.org/zap"
)

// Monitor watches every container backing a running App/ManagedDatabase/
// Service and restarts it (with backoff) when it has crashed, failing the
// deployment once the restart budget is exhausted. Databases and Compose
// services are reconciled but never auto-restarted (operator-driven per
// spec.md §4.3).
type Monitor struct {
	store   *store.Store
	runtime runner.Runtime
	config  config.ContainerMonitorConfig
	compose *compose.Manager
	events  events.PubSub

	mu     sync.Mutex
	states map[string]*RestartState
}

// New constructs a Monitor. cfg.MaxRestartAttempts/InitialBackoffSecs/
// MaxBackoffSecs/StableDurationSecs govern §4.3's restart policy. cm may be
// nil, in which case compose Service probing is skipped (running Services
// are left untouched by ticks and by startup reconciliation). pub may be nil, in which case
// status transitions are not published anywhere.
func New(st *store.Store, rt runner.Runtime, cfg config.ContainerMonitorConfig, cm *compose.Manager, pub events.PubSub) *Monitor {
	return &Monitor{
		store:   st,
		runtime: rt,
		config:  cfg,
		compose: cm,
		events:  pub,
		states:  make(map[string]*RestartState),
	}
}

func (m *Monitor) publish(ctx context.Context, topic string, payload interface{}) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, topic, payload); err != nil {
		logger.GetLogger(ctx).Warn("publish event failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (m *Monitor) stateFor(key string) *RestartState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[key]
	if !ok {
		s = NewRestartState()
		m.states[key] = s
	}
	return s
}

// ReconcileStartup runs once, to completion, before the first tick and
// before the API starts accepting requests: any App/ManagedDatabase/Service
// whose status claims "running" but whose container is not actually running
// is flipped to "stopped" (spec.md §4.3's startup reconciliation pass). It
// never attempts a restart — a crash that happened while the process was
// down is surfaced, not silently recovered.
func (m *Monitor) ReconcileStartup(ctx context.Context) error {
	log := logger.GetLogger(ctx).With(zap.String("component", "monitor"))

	deployments, err := m.store.RunningDeployments(ctx)
	if err != nil {
		return err
	}
	for _, d := range deployments {
		if d.ContainerID == nil || *d.ContainerID == "" {
			continue
		}
		info, err := m.runtime.Inspect(ctx, *d.ContainerID)
		if err != nil || !info.Running {
			log.Warn("deployment container not running at startup, marking stopped",
				zap.String("deployment_id", d.ID), zap.String("container_id", *d.ContainerID))
			if err := m.store.UpdateDeploymentStatus(ctx, d.ID, enum.DeploymentStatusStopped, nil, nowPtr()); err != nil {
				return err
			}
		}
	}

	databases, err := m.store.RunningDatabases(ctx)
	if err != nil {
		return err
	}
	for _, d := range databases {
		if d.ContainerID == nil || *d.ContainerID == "" {
			continue
		}
		info, err := m.runtime.Inspect(ctx, *d.ContainerID)
		if err != nil || !info.Running {
			log.Warn("database container not running at startup, marking stopped",
				zap.String("database_id", d.ID), zap.String("container_id", *d.ContainerID))
			if err := m.store.UpdateDatabaseStatus(ctx, d.ID, enum.ManagedDatabaseStatusStopped); err != nil {
				return err
			}
		}
	}

	services, err := m.store.RunningServices(ctx)
	if err != nil {
		return err
	}
	for _, s := range services {
		if m.compose == nil {
			break
		}
		running := m.compose.IsRunning(ctx, s.Name, func(containerID string) bool {
			info, err := m.runtime.Inspect(ctx, containerID)
			return err == nil && info.Running
		})
		if running {
			continue
		}
		if err := m.store.UpdateServiceStatus(ctx, s.ID, enum.ServiceStatusStopped); err != nil {
			return err
		}
		log.Warn("service marked stopped at startup reconciliation", zap.String("service_id", s.ID))
	}

	return nil
}

// Tick runs a single monitoring pass across every running deployment,
// database, and Compose service, restarting crashed deployment containers
// per the backoff policy and marking permanently-failed ones. Databases and
// services are reconciled but never restarted automatically.
func (m *Monitor) Tick(ctx context.Context) {
	log := logger.GetLogger(ctx).With(zap.String("component", "monitor"))

	deployments, err := m.store.RunningDeployments(ctx)
	if err != nil {
		log.Error("list running deployments", zap.Error(err))
	} else {
		for _, d := range deployments {
			m.checkDeployment(ctx, log, d)
		}
	}

	databases, err := m.store.RunningDatabases(ctx)
	if err != nil {
		log.Error("list running databases", zap.Error(err))
	} else {
		for _, d := range databases {
			m.checkDatabase(ctx, log, d)
		}
	}

	services, err := m.store.RunningServices(ctx)
	if err != nil {
		log.Error("list running services", zap.Error(err))
	} else {
		for _, s := range services {
			m.checkService(ctx, log, s)
		}
	}
}

func (m *Monitor) checkDeployment(ctx context.Context, log *zap.Logger, d store.Deployment) {
	if d.ContainerID == nil || *d.ContainerID == "" {
		return
	}
	key := "deployment:" + d.ID
	state := m.stateFor(key)
	now := time.Now()

	info, err := m.runtime.Inspect(ctx, *d.ContainerID)
	if err != nil {
		// The daemon has no record of this container at all — distinct
		// from "exists but stopped", which is handled by the backoff path
		// below. This is terminal: there is nothing left to restart.
		msg := "Container not found"
		_ = m.store.UpdateDeploymentStatus(ctx, d.ID, enum.DeploymentStatusFailed, &msg, nowPtr())
		_ = m.store.InsertDeploymentLog(ctx, d.ID, enum.LogLevelError, msg)
		log.Error("deployment container not found, marking failed",
			zap.String("deployment_id", d.ID), zap.String("container_id", *d.ContainerID), zap.Error(err))
		m.publish(ctx, events.DeploymentTopic(d.ID), events.DeploymentStatusEvent{
			Type: events.EventTypeDeploymentStatus, DeploymentID: d.ID, AppID: d.AppID,
			Status: string(enum.DeploymentStatusFailed), Error: msg, Timestamp: time.Now().UTC(),
		})
		return
	}
	if info.Running {
		state.ObserveRunning(now, time.Duration(m.config.StableDurationSecs)*time.Second)
		return
	}
	state.ObserveDown()

	if state.ExceededAttempts(m.config.MaxRestartAttempts) {
		if !state.Failed {
			state.MarkFailed()
			msg := fmt.Sprintf("Exceeded maximum restart attempts (%d)", m.config.MaxRestartAttempts)
			_ = m.store.UpdateDeploymentStatus(ctx, d.ID, enum.DeploymentStatusFailed, &msg, nowPtr())
			_ = m.store.InsertDeploymentLog(ctx, d.ID, enum.LogLevelError, msg)
			log.Error("deployment marked failed after exhausting restart attempts",
				zap.String("deployment_id", d.ID), zap.Int("restart_count", state.RestartCount))
			m.publish(ctx, events.DeploymentTopic(d.ID), events.DeploymentStatusEvent{
				Type: events.EventTypeDeploymentStatus, DeploymentID: d.ID, AppID: d.AppID,
				Status: string(enum.DeploymentStatusFailed), Error: msg, Timestamp: time.Now().UTC(),
			})
		}
		return
	}

	if !state.ShouldRestart(now) {
		return
	}

	state.RecordRestart(now, time.Duration(m.config.InitialBackoffSecs)*time.Second, time.Duration(m.config.MaxBackoffSecs)*time.Second)
	attemptMsg := fmt.Sprintf("attempting restart %d/%d", state.RestartCount, m.config.MaxRestartAttempts)
	log.Warn(attemptMsg,
		zap.String("deployment_id", d.ID), zap.String("container_id", *d.ContainerID), zap.Int("attempt", state.RestartCount))
	_ = m.store.InsertDeploymentLog(ctx, d.ID, enum.LogLevelWarn, attemptMsg)

	if err := m.runtime.Restart(ctx, *d.ContainerID); err != nil {
		log.Error("restart attempt failed", zap.String("deployment_id", d.ID), zap.Error(err))
		return
	}
}

// checkDatabase reconciles a running ManagedDatabase against its container.
// Unlike deployments, databases are never auto-restarted by the monitor
// (spec.md §4.3: "operator-driven"): an inspect that succeeds but reports
// not-running flips the database to stopped, and an inspect that fails
// outright (container gone) flips it to failed with "Container not found",
// matching original_source/src/engine/container_monitor.rs's
// check_databases.
func (m *Monitor) checkDatabase(ctx context.Context, log *zap.Logger, d store.ManagedDatabase) {
	if d.ContainerID == nil || *d.ContainerID == "" {
		return
	}

	info, err := m.runtime.Inspect(ctx, *d.ContainerID)
	if err != nil {
		log.Warn("database container not found, marking failed",
			zap.String("database_id", d.ID), zap.String("container_id", *d.ContainerID))
		_ = m.store.UpdateDatabaseStatus(ctx, d.ID, enum.ManagedDatabaseStatusFailed)
		m.publish(ctx, events.DatabaseTopic(d.ID), events.DatabaseStatusEvent{
			Type: events.EventTypeDatabaseStatus, DatabaseID: d.ID,
			Status: string(enum.ManagedDatabaseStatusFailed), Timestamp: time.Now().UTC(),
		})
		return
	}
	if !info.Running {
		log.Warn("database container stopped", zap.String("database_id", d.ID), zap.String("container_id", *d.ContainerID))
		_ = m.store.UpdateDatabaseStatus(ctx, d.ID, enum.ManagedDatabaseStatusStopped)
		m.publish(ctx, events.DatabaseTopic(d.ID), events.DatabaseStatusEvent{
			Type: events.EventTypeDatabaseStatus, DatabaseID: d.ID,
			Status: string(enum.ManagedDatabaseStatusStopped), Timestamp: time.Now().UTC(),
		})
	}
}

// checkService probes a running Compose Service's project for any
// remaining running containers, flipping it to stopped when none are left.
// Services, like databases, are never auto-restarted by the monitor.
func (m *Monitor) checkService(ctx context.Context, log *zap.Logger, s store.Service) {
	if m.compose == nil {
		return
	}
	running := m.compose.IsRunning(ctx, s.Name, func(containerID string) bool {
		info, err := m.runtime.Inspect(ctx, containerID)
		return err == nil && info.Running
	})
	if running {
		return
	}
	log.Warn("compose service has no running containers, marking stopped", zap.String("service_id", s.ID), zap.String("service_name", s.Name))
	_ = m.store.UpdateServiceStatus(ctx, s.ID, enum.ServiceStatusStopped)
	m.publish(ctx, events.ServiceTopic(s.ID), events.ServiceStatusEvent{
		Type: events.EventTypeServiceStatus, ServiceID: s.ID,
		Status: string(enum.ServiceStatusStopped), Timestamp: time.Now().UTC(),
	})
}

func nowPtr() *time.Time {
	t := time.Now().UTC()
	return &t
}

// Run spawns the monitor's background loop: a 10s startup delay (letting
// containers finish booting before the first check), then a ticker with
// skip-on-miss semantics so a slow tick never causes a burst of catch-up
// ticks. It returns once ctx is cancelled.
func Run(ctx context.Context, m *Monitor) {
	if !m.config.Enabled {
		logger.GetLogger(ctx).Info("container monitor disabled")
		return
	}

	select {
	case <-time.After(10 * time.Second):
	case <-ctx.Done():
		return
	}

	interval := time.Duration(m.config.CheckIntervalSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Go's ticker buffers at most one tick and drops the rest, so a
			// slow Tick is followed by at most one immediate tick, never a
			// burst.
			m.Tick(ctx)
		}
	}
}
