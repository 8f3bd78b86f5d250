// Package cleanup implements the deployment cleanup background task
// (spec.md §4.7): it trims each app's terminal-status deployment history
// down to a configured number, tearing down the containers and images that
// belonged to the trimmed rows, and optionally prunes dangling images
// (original_source/src/engine/cleanup.rs).
package cleanup

import (
	"context"
	"time"

	"github.com/docker/go-units"
	"github.com/rivetr/rivetr/internal/logger"
	"github.com/rivetr/rivetr/internal/runner"
	"github.com/rivetr/rivetr/internal/store"
	"go.uber.org/zap"
)

// Stats summarizes one cleanup cycle across every app.
type Stats struct {
	DeploymentsRemoved int
	ContainersRemoved  int
	ImagesRemoved      int
	BytesReclaimed     int64
}

// Cleanup trims old deployment history and its associated containers/images.
type Cleanup struct {
	store       *store.Store
	runtime     runner.Runtime
	maxPerApp   int
	pruneImages bool
}

func New(st *store.Store, rt runner.Runtime, maxPerApp int, pruneImages bool) *Cleanup {
	return &Cleanup{store: st, runtime: rt, maxPerApp: maxPerApp, pruneImages: pruneImages}
}

// Run executes a single cleanup cycle across every app. A failure cleaning
// up one app is logged and skipped, not fatal to the rest of the cycle.
func (c *Cleanup) Run(ctx context.Context) (Stats, error) {
	log := logger.GetLogger(ctx).With(zap.String("component", "cleanup"))
	log.Info("starting deployment cleanup cycle")

	var stats Stats

	apps, err := c.store.Apps(ctx)
	if err != nil {
		return stats, err
	}

	for _, app := range apps {
		appStats, err := c.cleanupAppDeployments(ctx, app.ID)
		if err != nil {
			log.Warn("cleanup failed for app", zap.String("app_id", app.ID), zap.Error(err))
			continue
		}
		stats.DeploymentsRemoved += appStats.DeploymentsRemoved
		stats.ContainersRemoved += appStats.ContainersRemoved
		stats.ImagesRemoved += appStats.ImagesRemoved
	}

	if c.pruneImages {
		reclaimed, err := c.runtime.PruneImages(ctx)
		if err != nil {
			log.Warn("pruning unused images failed", zap.Error(err))
		} else {
			stats.BytesReclaimed = reclaimed
			if reclaimed > 0 {
				log.Info("pruned unused images", zap.String("reclaimed", units.HumanSize(float64(reclaimed))))
			}
		}
	}

	log.Info("cleanup cycle complete",
		zap.Int("deployments_removed", stats.DeploymentsRemoved),
		zap.Int("containers_removed", stats.ContainersRemoved),
		zap.Int("images_removed", stats.ImagesRemoved),
		zap.String("bytes_reclaimed", units.HumanSize(float64(stats.BytesReclaimed))))

	return stats, nil
}

// cleanupAppDeployments tears down and deletes every terminal deployment for
// an app beyond the most recent maxPerApp.
func (c *Cleanup) cleanupAppDeployments(ctx context.Context, appID string) (Stats, error) {
	log := logger.GetLogger(ctx).With(zap.String("component", "cleanup"), zap.String("app_id", appID))
	var stats Stats

	old, err := c.store.DeploymentsForCleanup(ctx, appID, c.maxPerApp)
	if err != nil {
		return stats, err
	}
	if len(old) == 0 {
		return stats, nil
	}

	for _, deployment := range old {
		if deployment.ContainerID != nil && *deployment.ContainerID != "" {
			containerID := *deployment.ContainerID

			// Stop is best-effort: a container that already exited (the
			// common case for a terminal deployment) returns an error we
			// don't propagate.
			if err := c.runtime.Stop(ctx, containerID); err != nil {
				log.Debug("container may already be stopped", zap.String("container_id", containerID), zap.Error(err))
			}

			if err := c.runtime.Remove(ctx, containerID); err != nil {
				log.Debug("failed to remove container, may not exist", zap.String("container_id", containerID), zap.Error(err))
			} else {
				stats.ContainersRemoved++
			}
		}

		if deployment.ImageTag != nil && *deployment.ImageTag != "" {
			if err := c.runtime.RemoveImage(ctx, *deployment.ImageTag); err != nil {
				log.Debug("failed to remove image, may be in use or absent", zap.String("image_tag", *deployment.ImageTag), zap.Error(err))
			} else {
				stats.ImagesRemoved++
			}
		}

		if err := c.store.DeleteDeployment(ctx, deployment.ID); err != nil {
			return stats, err
		}
		stats.DeploymentsRemoved++
	}

	return stats, nil
}

// RunLoop drives Run on a fixed tick, with a startup delay to let the system
// stabilize before the first sweep.
func RunLoop(ctx context.Context, c *Cleanup, interval time.Duration) {
	select {
	case <-time.After(60 * time.Second):
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
			if _, err := c.Run(ctx); err != nil {
				logger.GetLogger(ctx).Error("cleanup cycle failed", zap.Error(err))
			}
		}
	}
}
