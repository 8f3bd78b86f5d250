// Package metrics implements the resource metrics collector (spec.md
// §4.5): a periodic sampler that records one ResourceMetric row per running
// deployment container, plus a separate, slower retention-trim tick. The two
// tickers run independently (original_source/src/engine/
// resource_metrics_collector.rs's `tokio::select!` between a sampling
// ticker and a cleanup ticker, reproduced here as two goroutines).
package metrics

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rivetr/rivetr/internal/logger"
	"github.com/rivetr/rivetr/internal/runner"
	"github.com/rivetr/rivetr/internal/store"
	"go.uber.org/zap"
)

// Collector samples container resource usage on a fixed tick and separately
// trims samples past the retention window.
type Collector struct {
	store          *store.Store
	runtime        runner.Runtime
	tickInterval   time.Duration
	retentionHours int
}

func New(st *store.Store, rt runner.Runtime, tickInterval time.Duration, retentionHours int) *Collector {
	return &Collector{store: st, runtime: rt, tickInterval: tickInterval, retentionHours: retentionHours}
}

// Sample takes one stats snapshot of every running deployment's container
// and batches the results into a single insert. A container that fails to
// respond to Stats (e.g. it just crashed) is skipped, not fatal to the
// batch — its neighbors' samples still get recorded.
func (c *Collector) Sample(ctx context.Context) error {
	log := logger.GetLogger(ctx).With(zap.String("component", "metrics"))

	containers, err := c.store.RunningDeploymentContainers(ctx)
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		return nil
	}

	now := time.Now().UTC()
	batch := make([]store.ResourceMetric, 0, len(containers))

	var errs *multierror.Error
	for appID, containerID := range containers {
		stats, err := c.runtime.Stats(ctx, containerID)
		if err != nil {
			log.Warn("sample container stats failed", zap.String("app_id", appID), zap.String("container_id", containerID), zap.Error(err))
			errs = multierror.Append(errs, err)
			continue
		}
		batch = append(batch, store.ResourceMetric{
			AppID:            appID,
			Timestamp:        now,
			CPUPercent:       stats.CPUPercent,
			MemoryBytes:      stats.MemoryUsage,
			MemoryLimitBytes: stats.MemoryLimit,
			// Disk usage is not surfaced by the container runtime's stats
			// API on either Docker or Podman; recorded as zero pending a
			// volume-usage sampler (see DESIGN.md open question 1).
			DiskBytes:      0,
			DiskLimitBytes: 0,
		})
	}

	if err := c.store.InsertResourceMetrics(ctx, batch); err != nil {
		return err
	}
	return errs.ErrorOrNil()
}

// Prune deletes samples older than the configured retention window.
func (c *Collector) Prune(ctx context.Context) (int64, error) {
	return c.store.PruneResourceMetrics(ctx, time.Duration(c.retentionHours)*time.Hour)
}

// Run spawns the collector's two independent ticks: a 10s-delayed sampling
// loop at tickInterval, and an hourly retention-trim loop. Both stop when
// ctx is cancelled.
func Run(ctx context.Context, c *Collector) {
	go c.runSampling(ctx)
	go c.runRetention(ctx)
	<-ctx.Done()
}

func (c *Collector) runSampling(ctx context.Context) {
	select {
	case <-time.After(10 * time.Second):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Sample(ctx); err != nil {
				logger.GetLogger(ctx).Error("resource metrics sampling tick failed", zap.Error(err))
			}
		}
	}
}

func (c *Collector) runRetention(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Prune(ctx)
			if err != nil {
				logger.GetLogger(ctx).Error("resource metrics retention tick failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.GetLogger(ctx).Info("pruned old resource metrics", zap.Int64("rows", n))
			}
		}
	}
}
