// Package diskmonitor periodically samples free space on the data
// directory's filesystem and logs when usage crosses a warning or critical
// threshold (a supplemented feature: the distilled spec drops it, but
// original_source/src/engine/disk_monitor.rs's hysteresis logging is cheap
// to carry over and the container host running every app's volumes is
// exactly the kind of thing an operator wants paged on).
package diskmonitor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rivetr/rivetr/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Stats is a point-in-time filesystem usage sample.
type Stats struct {
	TotalBytes   uint64
	UsedBytes    uint64
	FreeBytes    uint64
	UsagePercent float64
}

// statPath calls statfs(2) on path and derives usage, using available
// (not just free) blocks for the percentage the same way the original does
// — available excludes blocks reserved for root, so it reports the number
// an unprivileged process actually has to work with.
func statPath(path string) (Stats, error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return Stats{}, fmt.Errorf("statfs %s: %w", path, err)
	}

	blockSize := uint64(fs.Bsize)
	total := fs.Blocks * blockSize
	free := fs.Bfree * blockSize
	available := fs.Bavail * blockSize
	used := total - free

	var usagePercent float64
	if total > 0 {
		usagePercent = float64(total-available) / float64(total) * 100.0
	}

	return Stats{TotalBytes: total, UsedBytes: used, FreeBytes: free, UsagePercent: usagePercent}, nil
}

// Monitor tracks a filesystem path's usage and logs threshold crossings.
type Monitor struct {
	path              string
	warningThreshold  int
	criticalThreshold int
	lastThreshold     atomic.Int32
}

func New(path string, warningThreshold, criticalThreshold int) *Monitor {
	return &Monitor{path: path, warningThreshold: warningThreshold, criticalThreshold: criticalThreshold}
}

// Check samples disk usage once and logs if the usage level just crossed
// into (or back out of) a threshold band. Re-sampling at the same level is
// silent — this only logs on a transition, never every tick.
func (m *Monitor) Check(ctx context.Context) (Stats, error) {
	stats, err := statPath(m.path)
	if err != nil {
		return Stats{}, err
	}

	log := logger.GetLogger(ctx).With(zap.String("component", "diskmonitor"), zap.String("path", m.path))

	current := 0
	switch {
	case stats.UsagePercent >= float64(m.criticalThreshold):
		current = m.criticalThreshold
	case stats.UsagePercent >= float64(m.warningThreshold):
		current = m.warningThreshold
	}

	last := int(m.lastThreshold.Load())
	freeGB := float64(stats.FreeBytes) / (1024.0 * 1024.0 * 1024.0)

	switch {
	case current > last && current >= m.criticalThreshold:
		log.Error("disk usage exceeds critical threshold",
			zap.Float64("usage_percent", stats.UsagePercent), zap.Float64("free_gb", freeGB), zap.Int("threshold", m.criticalThreshold))
		m.lastThreshold.Store(int32(current))
	case current > last:
		log.Warn("disk usage exceeds warning threshold",
			zap.Float64("usage_percent", stats.UsagePercent), zap.Float64("free_gb", freeGB), zap.Int("threshold", m.warningThreshold))
		m.lastThreshold.Store(int32(current))
	case current < last:
		log.Info("disk usage returned to normal levels", zap.Float64("usage_percent", stats.UsagePercent))
		m.lastThreshold.Store(int32(current))
	}

	return stats, nil
}

// Run drives Check on a fixed tick, sampling once immediately at startup.
func Run(ctx context.Context, m *Monitor, interval time.Duration) {
	if _, err := m.Check(ctx); err != nil {
		logger.GetLogger(ctx).Warn("initial disk check failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Check(ctx); err != nil {
				logger.GetLogger(ctx).Error("disk monitoring check failed", zap.Error(err))
			}
		}
	}
}
