// Package cost implements the daily cost calculator (spec.md §4.6): it
// aggregates each app's resource_metrics samples for a given date into a
// CostSnapshot, pricing cpu/memory/disk usage against administrator-editable
// monthly rates (original_source/src/engine/cost_calculator.rs).
package cost

import (
	"context"
	"time"

	"github.com/rivetr/rivetr/internal/enum"
	"github.com/rivetr/rivetr/internal/logger"
	"github.com/rivetr/rivetr/internal/store"
	"go.uber.org/zap"
)

const (
	bytesPerGB   = 1024.0 * 1024.0 * 1024.0
	daysPerMonth = 30.0
	dateFormat   = "2006-01-02"
)

// defaultRates apply whenever the cost_rates table has no row for a
// resource type — an administrator who never visited the pricing page
// still gets non-zero cost snapshots.
var defaultRates = map[enum.MetricType]float64{
	enum.MetricTypeCPU:    0.02,
	enum.MetricTypeMemory: 0.05,
	enum.MetricTypeDisk:   0.10,
}

// Result summarizes one calculation pass, mirroring the original's
// CostCalculationResult so callers can log a one-line tick summary.
type Result struct {
	AppsProcessed    int
	SnapshotsCreated int
	Errors           int
}

// Calculator prices resource usage into daily CostSnapshot rows.
type Calculator struct {
	store         *store.Store
	retentionDays int

	yesterdayDone bool // computed once per process lifetime, per spec.md §4.6
}

func New(st *store.Store, retentionDays int) *Calculator {
	return &Calculator{store: st, retentionDays: retentionDays}
}

func (c *Calculator) rates(ctx context.Context) map[enum.MetricType]float64 {
	rates := make(map[enum.MetricType]float64, len(defaultRates))
	for k, v := range defaultRates {
		rates[k] = v
	}

	rows, err := c.store.CostRates(ctx)
	if err != nil {
		logger.GetLogger(ctx).Warn("loading cost rates failed, using defaults", zap.Error(err))
		return rates
	}
	for _, r := range rows {
		rates[r.ResourceType] = r.RatePerUnit
	}
	return rates
}

// CalculateForDate prices every app with at least one metric sample on the
// given date (YYYY-MM-DD) and upserts a CostSnapshot for each.
func (c *Calculator) CalculateForDate(ctx context.Context, date string) (Result, error) {
	log := logger.GetLogger(ctx).With(zap.String("component", "cost"), zap.String("date", date))
	rates := c.rates(ctx)

	appIDs, err := c.store.DistinctAppIDsForDate(ctx, date)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, appID := range appIDs {
		result.AppsProcessed++
		created, err := c.calculateAppCostForDate(ctx, appID, date, rates)
		if err != nil {
			log.Error("calculating app cost failed", zap.String("app_id", appID), zap.Error(err))
			result.Errors++
			continue
		}
		if created {
			result.SnapshotsCreated++
		}
	}
	return result, nil
}

// calculateAppCostForDate aggregates one app's samples for the date and
// upserts its snapshot. It returns created=false (not an error) when the
// app has no samples for the date, mirroring the original's early return
// on sample_count == 0.
func (c *Calculator) calculateAppCostForDate(ctx context.Context, appID, date string, rates map[enum.MetricType]float64) (bool, error) {
	avgCPUPercent, avgMemoryBytes, avgDiskBytes, sampleCount, err := c.store.AggregatedMetricsForAppDate(ctx, appID, date)
	if err != nil {
		return false, err
	}
	if sampleCount == 0 {
		return false, nil
	}

	avgCPUCores := avgCPUPercent / 100.0
	avgMemoryGB := avgMemoryBytes / bytesPerGB
	avgDiskGB := avgDiskBytes / bytesPerGB

	dailyCPURate := rates[enum.MetricTypeCPU] / daysPerMonth
	dailyMemoryRate := rates[enum.MetricTypeMemory] / daysPerMonth
	dailyDiskRate := rates[enum.MetricTypeDisk] / daysPerMonth

	cpuCost := avgCPUCores * dailyCPURate
	memoryCost := avgMemoryGB * dailyMemoryRate
	diskCost := avgDiskGB * dailyDiskRate

	snap := store.CostSnapshot{
		AppID:        appID,
		SnapshotDate: date,
		AvgCPUCores:  avgCPUCores,
		AvgMemoryGB:  avgMemoryGB,
		AvgDiskGB:    avgDiskGB,
		CPUCost:      cpuCost,
		MemoryCost:   memoryCost,
		DiskCost:     diskCost,
		TotalCost:    cpuCost + memoryCost + diskCost,
		SampleCount:  sampleCount,
	}
	if err := c.store.UpsertCostSnapshot(ctx, snap); err != nil {
		return false, err
	}
	return true, nil
}

// CalculateForYesterday prices the prior UTC calendar day — the
// historical pass run once a day after the day has fully closed out.
func (c *Calculator) CalculateForYesterday(ctx context.Context) (Result, error) {
	date := time.Now().UTC().AddDate(0, 0, -1).Format(dateFormat)
	return c.CalculateForDate(ctx, date)
}

// CalculateForToday prices the current UTC calendar day in progress, so
// the dashboard can show an up-to-date running total before the day closes.
func (c *Calculator) CalculateForToday(ctx context.Context) (Result, error) {
	date := time.Now().UTC().Format(dateFormat)
	return c.CalculateForDate(ctx, date)
}

// Prune deletes snapshots older than the configured retention window.
func (c *Calculator) Prune(ctx context.Context) (int64, error) {
	return c.store.CleanupOldCostSnapshots(ctx, c.retentionDays)
}

// Run drives the calculator per spec.md §4.6/§5: a 30s startup delay, then
// one pass immediately (today + yesterday) followed by an hourly ticker.
// Yesterday is only recomputed once per process lifetime — each subsequent
// hourly tick just refreshes today incrementally — and the retention sweep
// only runs on the Sunday tick.
func Run(ctx context.Context, c *Calculator) {
	select {
	case <-time.After(30 * time.Second):
	case <-ctx.Done():
		return
	}

	c.tick(ctx)

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Calculator) tick(ctx context.Context) {
	log := logger.GetLogger(ctx).With(zap.String("component", "cost"))

	if !c.yesterdayDone {
		if result, err := c.CalculateForYesterday(ctx); err != nil {
			log.Error("cost calculation for yesterday failed", zap.Error(err))
		} else {
			c.yesterdayDone = true
			log.Info("cost calculation for yesterday complete",
				zap.Int("apps_processed", result.AppsProcessed),
				zap.Int("snapshots_created", result.SnapshotsCreated),
				zap.Int("errors", result.Errors))
		}
	}

	if result, err := c.CalculateForToday(ctx); err != nil {
		log.Error("cost calculation for today failed", zap.Error(err))
	} else {
		log.Info("cost calculation for today complete",
			zap.Int("apps_processed", result.AppsProcessed),
			zap.Int("snapshots_created", result.SnapshotsCreated),
			zap.Int("errors", result.Errors))
	}

	if time.Now().UTC().Weekday() != time.Sunday {
		return
	}
	if n, err := c.Prune(ctx); err != nil {
		log.Error("cost snapshot retention sweep failed", zap.Error(err))
	} else if n > 0 {
		log.Info("pruned old cost snapshots", zap.Int64("rows", n))
	}
}
